package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/Aman-CERP/shardex/internal/errors"
	"github.com/Aman-CERP/shardex/internal/storage"
)

const (
	commitPrefix  = "commit-"
	pendingPrefix = "pending-commit-"
	commitSuffix  = ".json"
)

func commitFileName(gen int64) string {
	return fmt.Sprintf("%s%d%s", commitPrefix, gen, commitSuffix)
}

func pendingFileName(gen int64) string {
	return fmt.Sprintf("%s%d%s", pendingPrefix, gen, commitSuffix)
}

// parseCommitName returns the generation of a commit file name.
func parseCommitName(name string) (int64, bool) {
	if !strings.HasPrefix(name, commitPrefix) || !strings.HasSuffix(name, commitSuffix) {
		return 0, false
	}
	gen, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, commitPrefix), commitSuffix), 10, 64)
	if err != nil || gen <= 0 {
		return 0, false
	}
	return gen, true
}

// writeCommit writes cp as a pending file, syncs it and renames it into
// place so a crash never leaves a half-written commit file.
func writeCommit(dir storage.Directory, cp CommitPoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.InternalError("encode commit point", err)
	}

	pending := pendingFileName(cp.Generation)
	out, err := dir.Create(pending)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		_ = out.Close()
		return errors.IOError("write commit file", err).WithDetail("name", pending)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return errors.IOError("sync commit file", err).WithDetail("name", pending)
	}
	if err := out.Close(); err != nil {
		return errors.IOError("close commit file", err).WithDetail("name", pending)
	}
	return dir.Rename(pending, cp.FileName)
}

func readCommit(dir storage.Directory, name string, gen int64) (CommitPoint, error) {
	in, err := dir.Open(name)
	if err != nil {
		return CommitPoint{}, err
	}
	defer in.Close()

	data, err := io.ReadAll(in)
	if err != nil {
		return CommitPoint{}, errors.IOError("read commit file", err).WithDetail("name", name)
	}
	var cp CommitPoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return CommitPoint{}, errors.New(errors.ErrCodeCorruptIndex, "commit file is corrupt", err).WithDetail("name", name)
	}
	if cp.Generation != gen {
		return CommitPoint{}, errors.New(errors.ErrCodeCorruptIndex,
			fmt.Sprintf("commit file generation %d does not match name", cp.Generation), nil).WithDetail("name", name)
	}
	cp.FileName = name
	return cp, nil
}

// loadCommits reads every commit file in dir, oldest first, and removes
// pending files left by an interrupted commit.
func loadCommits(dir storage.Directory) ([]CommitPoint, []string, error) {
	names, err := dir.List()
	if err != nil {
		return nil, nil, err
	}

	var commits []CommitPoint
	var stale []string
	for _, name := range names {
		if strings.HasPrefix(name, pendingPrefix) {
			stale = append(stale, name)
			continue
		}
		gen, ok := parseCommitName(name)
		if !ok {
			continue
		}
		cp, err := readCommit(dir, name, gen)
		if err != nil {
			return nil, nil, err
		}
		commits = append(commits, cp)
	}

	sort.Slice(commits, func(i, j int) bool {
		return commits[i].Generation < commits[j].Generation
	})
	return commits, stale, nil
}
