// Package skills loads reusable task playbooks from markdown files so the
// turn orchestrator can advertise them in the system prompt or via
// skill_search.
package skills

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Skill is one loaded skill file.
type Skill struct {
	Path        string
	Name        string
	Description string
	Body        string
}

// Loader scans a workspace-local and a global skills directory for
// `*.md` files with a small `name:`/`description:` frontmatter header.
type Loader struct {
	workspaceDir string
	globalDir    string
	extraDir     string

	mu     sync.RWMutex
	skills []Skill
}

func NewLoader(workspaceDir, globalDir, extraDir string) *Loader {
	l := &Loader{workspaceDir: workspaceDir, globalDir: globalDir, extraDir: extraDir}
	l.Reload()
	return l
}

// Reload re-scans all skill directories. Safe to call concurrently with reads.
func (l *Loader) Reload() {
	var found []Skill
	for _, dir := range []string{l.globalDir, l.workspaceSkillsDir(), l.extraDir} {
		if dir == "" {
			continue
		}
		found = append(found, scanDir(dir)...)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })

	l.mu.Lock()
	l.skills = found
	l.mu.Unlock()
}

func (l *Loader) workspaceSkillsDir() string {
	if l.workspaceDir == "" {
		return ""
	}
	return filepath.Join(l.workspaceDir, "skills")
}

func scanDir(dir string) []Skill {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []Skill
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		skill := parseSkillFile(f, path)
		f.Close()
		if skill.Name == "" {
			skill.Name = strings.TrimSuffix(e.Name(), ".md")
		}
		out = append(out, skill)
	}
	return out
}

func parseSkillFile(f *os.File, path string) Skill {
	skill := Skill{Path: path}
	scanner := bufio.NewScanner(f)
	var body strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "name:"):
			skill.Name = strings.TrimSpace(strings.TrimPrefix(line, "name:"))
		case strings.HasPrefix(line, "description:"):
			skill.Description = strings.TrimSpace(strings.TrimPrefix(line, "description:"))
		default:
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	skill.Body = body.String()
	return skill
}

// ListSkills returns all loaded skills.
func (l *Loader) ListSkills() []Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Skill, len(l.skills))
	copy(out, l.skills)
	return out
}

// FilterSkills returns skills whose name is in allowList, or all skills when
// allowList is empty.
func (l *Loader) FilterSkills(allowList []string) []Skill {
	all := l.ListSkills()
	if len(allowList) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(allowList))
	for _, n := range allowList {
		allowed[n] = true
	}
	var out []Skill
	for _, s := range all {
		if allowed[s.Name] {
			out = append(out, s)
		}
	}
	return out
}

// BuildSummary renders an <available_skills> XML block for inlining into the
// system prompt.
func (l *Loader) BuildSummary(allowList []string) string {
	filtered := l.FilterSkills(allowList)
	if len(filtered) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<available_skills>\n")
	for _, s := range filtered {
		b.WriteString("  <skill name=\"")
		b.WriteString(s.Name)
		b.WriteString("\">")
		b.WriteString(s.Description)
		b.WriteString("</skill>\n")
	}
	b.WriteString("</available_skills>")
	return b.String()
}

// Watcher reloads the loader when skill files change on disk.
type Watcher struct {
	loader  *Loader
	watcher *fsnotify.Watcher
}

func NewWatcher(loader *Loader) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{loader.globalDir, loader.workspaceSkillsDir(), loader.extraDir} {
		if dir == "" {
			continue
		}
		os.MkdirAll(dir, 0755)
		_ = w.Add(dir)
	}
	return &Watcher{loader: loader, watcher: w}, nil
}

func (w *Watcher) Start(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				w.watcher.Close()
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if strings.HasSuffix(ev.Name, ".md") {
					slog.Debug("skills: reload triggered", "file", ev.Name, "op", ev.Op.String())
					w.loader.Reload()
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("skills watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
