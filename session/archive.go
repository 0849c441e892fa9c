package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screencap"
)

type ArchiveOrder uint

const (
	ArchiveOrderOldestFirst = ArchiveOrder(iota)
	ArchiveOrderNewestFirst
	EndOfArchiveOrder
)

func (o ArchiveOrder) String() string {
	switch o {
	case ArchiveOrderOldestFirst:
		return "oldest-first"
	case ArchiveOrderNewestFirst:
		return "newest-first"
	}
	return fmt.Sprintf("unexpected_archive_order_%d", uint(o))
}

func ParseArchiveOrder(s string) (ArchiveOrder, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ArchiveOrderOldestFirst, nil
	}
	for cmp := ArchiveOrderOldestFirst; cmp < EndOfArchiveOrder; cmp++ {
		if cmp.String() == s {
			return cmp, nil
		}
	}
	return ArchiveOrderOldestFirst, fmt.Errorf("%w: unknown archive order '%s'", screencap.ErrConfiguration, s)
}

func (o ArchiveOrder) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *ArchiveOrder) UnmarshalText(b []byte) error {
	v, err := ParseArchiveOrder(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

func (o *ArchiveOrder) Set(s string) error {
	return o.UnmarshalText([]byte(s))
}

func (*ArchiveOrder) Type() string {
	return "archive-order"
}

// ArchiveEntry is a finalized session directory.
type ArchiveEntry struct {
	VideoID    string    `json:"video_id"`
	Dir        string    `json:"dir"`
	ArchivedAt time.Time `json:"archived_at"`
}

// scanArchive finds the finalized sessions under root: the directories
// with the session suffix that contain the recording metadata. The result
// is ordered oldest first by the metadata modification time.
func scanArchive(
	ctx context.Context,
	root string,
) ([]ArchiveEntry, error) {
	entries, err := os.ReadDir(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: unable to read the recordings directory '%s': %w", screencap.ErrIO, root, err)
	}

	var result []ArchiveEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		videoID, ok := screencap.VideoIDFromDir(entry.Name())
		if !ok {
			continue
		}
		layout := screencap.NewSessionLayout(root, videoID)
		st, err := os.Stat(layout.MetaPath())
		if err != nil {
			logger.Debugf(ctx, "skipping '%s': %v", layout.Dir, err)
			continue
		}
		result = append(result, ArchiveEntry{
			VideoID:    videoID,
			Dir:        layout.Dir,
			ArchivedAt: st.ModTime(),
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].ArchivedAt.Equal(result[j].ArchivedAt) {
			return result[i].VideoID < result[j].VideoID
		}
		return result[i].ArchivedAt.Before(result[j].ArchivedAt)
	})
	return result, nil
}
