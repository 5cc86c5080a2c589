package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mergeflow/internal/config"
	"mergeflow/internal/media"
)

// filesFromArgs turns CLI arguments into file descriptors. An argument of
// the form "path::caption" attaches a caption. When local is set, every path
// must exist and its size is recorded.
func filesFromArgs(args []string, source media.LabelSource, local bool) ([]media.File, error) {
	files := make([]media.File, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			return nil, errors.New("empty file argument")
		}
		path, caption, _ := strings.Cut(arg, "::")
		spec := media.FileSpec{
			Name:    filepath.Base(path),
			Caption: caption,
			Handle:  path,
		}
		if local {
			expanded, err := config.ExpandPath(path)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(expanded)
			if err != nil {
				return nil, fmt.Errorf("inspect %q: %w", path, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory", path)
			}
			spec.Handle = expanded
			spec.Size = info.Size()
		}
		files = append(files, media.NewFile(spec, source))
	}
	return files, nil
}

func labelSourceFor(cfg *config.Config, flag string) (media.LabelSource, error) {
	value := strings.TrimSpace(flag)
	if value == "" && cfg != nil {
		value = cfg.Merge.LabelSource
	}
	switch media.LabelSource(value) {
	case media.LabelFromFilename, "":
		return media.LabelFromFilename, nil
	case media.LabelFromCaption:
		return media.LabelFromCaption, nil
	default:
		return "", fmt.Errorf("unknown label source %q (use filename or caption)", value)
	}
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
