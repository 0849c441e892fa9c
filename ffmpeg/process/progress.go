package process

import (
	"strconv"
	"strings"
	"time"
)

// Progress is one block of the "-progress" report.
type Progress struct {
	Frame     uint64
	FPS       float64
	OutTime   time.Duration
	TotalSize int64
	Speed     string
	End       bool
}

type progressParser struct {
	cur     Progress
	onFrame func(frame uint64)
	onBlock func(Progress)
}

func (p *progressParser) parseLine(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}
	value = strings.TrimSpace(value)
	switch key {
	case "frame":
		frame, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return
		}
		p.cur.Frame = frame
		if p.onFrame != nil {
			p.onFrame(frame)
		}
	case "fps":
		p.cur.FPS, _ = strconv.ParseFloat(value, 64)
	case "out_time_us":
		us, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			p.cur.OutTime = time.Duration(us) * time.Microsecond
		}
	case "total_size":
		p.cur.TotalSize, _ = strconv.ParseInt(value, 10, 64)
	case "speed":
		p.cur.Speed = value
	case "progress":
		p.cur.End = value == "end"
		if p.onBlock != nil {
			p.onBlock(p.cur)
		}
	}
}
