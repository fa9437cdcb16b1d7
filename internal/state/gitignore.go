package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// IgnoreEntry is the line maintained in the project's .gitignore.
const IgnoreEntry = ".dft/"

// ReconcileGitignore brings the project's .gitignore in line with the
// state.ignore_in_git option: the entry is added when the option is on and
// removed when it is off. Returns a human-readable description of what
// changed. Outside a git worktree the call is a no-op.
func ReconcileGitignore(projectRoot string, ignoreInGit bool) (string, error) {
	if _, err := git.PlainOpenWithOptions(projectRoot, &git.PlainOpenOptions{DetectDotGit: true}); err != nil {
		return "not inside a git repository, nothing to do", nil
	}

	path := filepath.Join(projectRoot, ".gitignore")
	lines, err := readLines(path)
	if err != nil {
		return "", err
	}

	present := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == IgnoreEntry {
			present = i
			break
		}
	}

	switch {
	case ignoreInGit && present < 0:
		lines = append(lines, IgnoreEntry)
		if err := writeLines(path, lines); err != nil {
			return "", err
		}
		return fmt.Sprintf("added %q to %s", IgnoreEntry, path), nil

	case !ignoreInGit && present >= 0:
		lines = append(lines[:present], lines[present+1:]...)
		if err := writeLines(path, lines); err != nil {
			return "", err
		}
		return fmt.Sprintf("removed %q from %s", IgnoreEntry, path), nil

	default:
		return "already up to date", nil
	}
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	content := strings.TrimRight(string(data), "\n")
	if content == "" {
		return nil, nil
	}
	return strings.Split(content, "\n"), nil
}

func writeLines(path string, lines []string) error {
	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
