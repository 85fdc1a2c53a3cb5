package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/prometheus/tsdb/wlog"
)

type segment struct {
	wlog.SegmentFile
	dir string
	ext string
	i   int
}

type segmentRef struct {
	name  string
	index int
}

func createSegment(dir string, i int, ext string) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, i, ext), os.O_RDWR|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o666)

	if err != nil {
		return nil, err
	}

	return &segment{SegmentFile: f, dir: dir, ext: ext, i: i}, nil
}

func openSegment(dir string, i int, ext string) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, i, ext), os.O_RDWR|os.O_APPEND, 0o666)

	if err != nil {
		return nil, err
	}

	return &segment{SegmentFile: f, dir: dir, ext: ext, i: i}, nil
}

func (s *segment) name() string {
	return segmentName(s.i, s.ext)
}

func (s *segment) path() string {
	return segmentPath(s.dir, s.i, s.ext)
}

// truncate drops a partially written tail so the segment stays readable.
func (s *segment) truncate(size int64) error {
	t, ok := s.SegmentFile.(interface{ Truncate(int64) error })

	if !ok {
		return fmt.Errorf("segment %s cannot be truncated", s.name())
	}

	return t.Truncate(size)
}

func segmentName(i int, ext string) string {
	return fmt.Sprintf("%020d.%s", i, ext)
}

func segmentPath(dir string, i int, ext string) string {
	return filepath.Join(dir, segmentName(i, ext))
}

// listSegments returns the segments of dir ordered by sequence number.
// Anything not named like a segment is skipped.
func listSegments(logger log.Logger, dir string, ext string) ([]segmentRef, error) {
	files, err := os.ReadDir(dir)

	if err != nil {
		return nil, err
	}

	refs := make([]segmentRef, 0, len(files))

	for _, file := range files {
		fileName := file.Name()

		if file.IsDir() || filepath.Ext(fileName) != "."+ext {
			level.Warn(logger).Log("msg", "skipping foreign file in storage directory", "file", fileName)
			continue
		}

		i, err := strconv.Atoi(strings.TrimSuffix(fileName, "."+ext))

		if err != nil || i < 0 {
			level.Warn(logger).Log("msg", "skipping file with invalid segment name", "file", fileName)
			continue
		}

		refs = append(refs, segmentRef{name: fileName, index: i})
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].index < refs[j].index
	})

	return refs, nil
}
