// Package shield implements the policy engine that evaluates tool calls,
// skill installs, and outbound network/secret access against a markdown
// threat feed.
package shield

import (
	"bufio"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Category enumerates the threat categories the feed can declare.
type Category string

const (
	CategoryPrompt       Category = "prompt"
	CategoryTool         Category = "tool"
	CategoryMCP          Category = "mcp"
	CategoryMemory       Category = "memory"
	CategorySupplyChain  Category = "supply_chain"
	CategoryVulnerability Category = "vulnerability"
	CategoryFraud        Category = "fraud"
	CategoryPolicyBypass Category = "policy_bypass"
	CategoryAnomaly      Category = "anomaly"
	CategorySkill        Category = "skill"
	CategoryOther        Category = "other"
)

// Action is the outcome of evaluating an event against the feed.
type Action string

const (
	ActionBlock           Action = "block"
	ActionRequireApproval Action = "require_approval"
	ActionLog             Action = "log"
)

// Scope is the kind of event being evaluated.
type Scope string

const (
	ScopePrompt         Scope = "prompt"
	ScopeSkillInstall   Scope = "skill.install"
	ScopeSkillExecute   Scope = "skill.execute"
	ScopeToolCall       Scope = "tool.call"
	ScopeNetworkEgress  Scope = "network.egress"
	ScopeSecretsRead    Scope = "secrets.read"
	ScopeMCP            Scope = "mcp"
)

// scopeWhitelist fixes which threat categories are eligible to fire for a
// given scope.
var scopeWhitelist = map[Scope]map[Category]bool{
	ScopePrompt:        set(CategoryPrompt, CategoryFraud, CategoryAnomaly, CategoryPolicyBypass, CategoryOther),
	ScopeSkillInstall:  set(CategorySkill, CategorySupplyChain, CategoryVulnerability, CategoryOther),
	ScopeSkillExecute:  set(CategorySkill, CategoryTool, CategoryAnomaly, CategoryOther),
	ScopeToolCall:      set(CategoryTool, CategoryPolicyBypass, CategoryAnomaly, CategoryFraud, CategoryMemory, CategoryOther),
	ScopeNetworkEgress: set(CategorySupplyChain, CategoryVulnerability, CategoryFraud, CategoryAnomaly, CategoryOther),
	ScopeSecretsRead:   set(CategoryVulnerability, CategoryPolicyBypass, CategoryOther),
	ScopeMCP:           set(CategoryMCP, CategorySupplyChain, CategoryTool, CategoryOther),
}

func set(cats ...Category) map[Category]bool {
	m := make(map[Category]bool, len(cats))
	for _, c := range cats {
		m[c] = true
	}
	return m
}

// Directive is one parsed recommendation_agent line: a verdict plus the
// condition text that must match for it to fire.
type Directive struct {
	Action    Action
	Condition string
}

// Threat is a single parsed, non-expired, non-revoked feed entry.
type Threat struct {
	ID          string
	Fingerprint string
	Category    Category
	Severity    string
	Confidence  float64
	Action      Action
	Title       string
	Description string
	Directives  []Directive
}

var severityWeight = map[string]float64{"critical": 4, "high": 3, "medium": 2, "low": 1}

func (t Threat) weight() float64 {
	return severityWeight[strings.ToLower(t.Severity)] * t.Confidence
}

// Event is what the orchestrator evaluates against the active threat feed.
type Event struct {
	Scope      Scope
	ToolName   string
	Arguments  map[string]string
	SkillName  string
	PluginName string
	Domain     string
	SecretPath string
	FilePath   string
	Message    string
	Importance float64
	ChainDepth int
	Iterations int
}

// Decision is the result of Evaluate.
type Decision struct {
	Action   Action
	ThreatID string // empty when no directive matched
	Title    string
	Reason   string
}

// Engine parses a threat feed file and evaluates events against it. Safe
// for concurrent use; Reload swaps the parsed threat set atomically.
type Engine struct {
	mu      sync.RWMutex
	threats []Threat
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New loads feedPath (if it exists) and, when watch is true, keeps it
// live-reloaded via fsnotify (the same config hot-reload
// pattern, generalized to a markdown feed).
func New(feedPath string, watch bool) (*Engine, error) {
	e := &Engine{path: feedPath}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	if watch && feedPath != "" {
		if err := e.startWatch(); err != nil {
			slog.Warn("shield: failed to start feed watcher", "path", feedPath, "error", err)
		}
	}
	return e, nil
}

// Reload re-parses the feed file from disk.
func (e *Engine) Reload() error {
	if e.path == "" {
		e.mu.Lock()
		e.threats = nil
		e.mu.Unlock()
		return nil
	}
	f, err := os.Open(e.path)
	if os.IsNotExist(err) {
		e.mu.Lock()
		e.threats = nil
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	threats := parseFeed(f, time.Now())
	e.mu.Lock()
	e.threats = threats
	e.mu.Unlock()
	slog.Info("shield: reloaded threat feed", "path", e.path, "count", len(threats))
	return nil
}

func (e *Engine) startWatch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(e.path); err != nil {
		w.Close()
		return err
	}
	e.watcher = w
	e.done = make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := e.Reload(); err != nil {
						slog.Error("shield: reload failed", "error", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("shield: watcher error", "error", err)
			case <-e.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the feed watcher, if any.
func (e *Engine) Close() {
	if e.watcher != nil {
		close(e.done)
		e.watcher.Close()
	}
}

// Evaluate produces a Decision for ev by combining every scope-compatible,
// directive-matching threat: block > require_approval > log,
// ties broken by severity×confidence then lexicographic id.
func (e *Engine) Evaluate(ev Event) Decision {
	e.mu.RLock()
	threats := e.threats
	e.mu.RUnlock()

	whitelist := scopeWhitelist[ev.Scope]
	var candidates []struct {
		Threat
		matched Action
	}

	for _, t := range threats {
		if !whitelist[t.Category] {
			continue
		}
		for _, d := range t.Directives {
			if matchDirective(d, ev) {
				candidates = append(candidates, struct {
					Threat
					matched Action
				}{t, d.Action})
				break
			}
		}
	}

	if len(candidates) == 0 {
		return Decision{Action: ActionLog}
	}

	rank := map[Action]int{ActionBlock: 3, ActionRequireApproval: 2, ActionLog: 1}
	sort.SliceStable(candidates, func(i, j int) bool {
		if rank[candidates[i].matched] != rank[candidates[j].matched] {
			return rank[candidates[i].matched] > rank[candidates[j].matched]
		}
		if candidates[i].weight() != candidates[j].weight() {
			return candidates[i].weight() > candidates[j].weight()
		}
		return candidates[i].ID < candidates[j].ID
	})

	winner := candidates[0]
	return Decision{
		Action:   winner.matched,
		ThreatID: winner.ID,
		Title:    winner.Title,
		Reason:   winner.Description,
	}
}

// --- directive matching ---

func matchDirective(d Directive, ev Event) bool {
	cond := strings.TrimSpace(d.Condition)
	switch {
	case strings.HasPrefix(cond, "tool.call "):
		return matchToolCall(strings.TrimPrefix(cond, "tool.call "), ev)
	case strings.HasPrefix(cond, "skill name equals "):
		return ev.SkillName == unquote(strings.TrimPrefix(cond, "skill name equals "))
	case strings.HasPrefix(cond, "skill name contains "):
		return strings.Contains(ev.SkillName, unquote(strings.TrimPrefix(cond, "skill name contains ")))
	case strings.HasPrefix(cond, "plugin package name does not match "):
		pat := unquote(strings.TrimPrefix(cond, "plugin package name does not match "))
		re, err := regexp.Compile(pat)
		if err != nil {
			return false
		}
		return !re.MatchString(ev.PluginName)
	case strings.HasPrefix(cond, "outbound request to "):
		return matchDomain(strings.TrimPrefix(cond, "outbound request to "), ev.Domain)
	case strings.HasPrefix(cond, "secrets read path equals "):
		pat := unquote(strings.TrimPrefix(cond, "secrets read path equals "))
		re, err := regexp.Compile("^" + strings.ReplaceAll(regexp.QuoteMeta(pat), `\*`, `[^.]+`) + "$")
		if err != nil {
			return false
		}
		return re.MatchString(ev.SecretPath)
	case strings.HasPrefix(cond, "file path equals "):
		return ev.FilePath == unquote(strings.TrimPrefix(cond, "file path equals "))
	case strings.HasPrefix(cond, "file path contains "):
		return strings.Contains(ev.FilePath, unquote(strings.TrimPrefix(cond, "file path contains ")))
	case strings.HasPrefix(cond, "incoming message contains "):
		return strings.Contains(strings.ToLower(ev.Message), strings.ToLower(unquote(strings.TrimPrefix(cond, "incoming message contains "))))
	case strings.HasPrefix(cond, "memory_add importance >= "):
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(cond, "memory_add importance >= ")), 64)
		return err == nil && ev.Importance >= n
	case strings.HasPrefix(cond, "delegation chain depth exceeds "):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(cond, "delegation chain depth exceeds ")))
		return err == nil && ev.ChainDepth > n
	case strings.HasPrefix(cond, "tool iterations >= "):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(cond, "tool iterations >= ")))
		return err == nil && ev.Iterations >= n
	}
	return false
}

func matchToolCall(rest string, ev Event) bool {
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "with arguments containing ") {
		kwList := unquote(strings.TrimPrefix(rest, "with arguments containing "))
		for _, kw := range splitOr(kwList) {
			for _, v := range ev.Arguments {
				if strings.Contains(strings.ToLower(v), strings.ToLower(kw)) {
					return true
				}
			}
		}
		return false
	}
	fields := strings.SplitN(rest, " with ", 2)
	name := strings.TrimSpace(fields[0])
	if name != ev.ToolName {
		return false
	}
	if len(fields) == 1 {
		return true
	}
	predicate := strings.TrimSpace(fields[1])
	predicate = strings.TrimPrefix(predicate, "arguments containing ")
	for _, kw := range splitOr(unquote(predicate)) {
		for _, v := range ev.Arguments {
			if strings.Contains(strings.ToLower(v), strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func matchDomain(rest string, domain string) bool {
	domain = strings.ToLower(domain)
	for _, cand := range splitOr(unquote(rest)) {
		cand = strings.ToLower(strings.TrimSpace(cand))
		if domain == cand || strings.HasSuffix(domain, "."+cand) {
			return true
		}
	}
	return false
}

func splitOr(s string) []string {
	parts := strings.Split(s, " or ")
	for i := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(parts[i]), "()")
	}
	return parts
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".")
	return strings.Trim(s, `"'`)
}

// --- feed parsing ---

var directivePrefixes = []struct {
	prefix string
	action Action
}{
	{"BLOCK:", ActionBlock},
	{"APPROVE:", ActionRequireApproval},
	{"LOG:", ActionLog},
}

// parseFeed reads fenced key/value blocks out of a markdown threat feed.
// Every fenced ```...``` block, whatever its info string, is treated as
// one entry; blocks without an "id:" line are not skipped.
func parseFeed(f *os.File, now time.Time) []Threat {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var threats []Threat
	var cur map[string]string
	var curDirectiveLines []string
	inBlock := false
	var curKey string

	flush := func() {
		if cur == nil {
			return
		}
		if cur["revoked"] == "true" {
			cur = nil
			return
		}
		if exp, ok := cur["expires_at"]; ok && exp != "" {
			if t, err := time.Parse(time.RFC3339, exp); err == nil && t.Before(now) {
				cur = nil
				return
			}
		}
		conf, _ := strconv.ParseFloat(cur["confidence"], 64)
		threats = append(threats, Threat{
			ID:          cur["id"],
			Fingerprint: cur["fingerprint"],
			Category:    Category(cur["category"]),
			Severity:    cur["severity"],
			Confidence:  conf,
			Action:      Action(cur["action"]),
			Title:       cur["title"],
			Description: cur["description"],
			Directives:  parseDirectives(curDirectiveLines),
		})
		cur = nil
		curDirectiveLines = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inBlock {
				flush()
				inBlock = false
			} else {
				inBlock = true
				cur = make(map[string]string)
				curKey = ""
			}
			continue
		}
		if !inBlock {
			continue
		}

		if curKey == "recommendation_agent" && (strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")) {
			curDirectiveLines = append(curDirectiveLines, trimmed)
			continue
		}

		if idx := strings.Index(trimmed, ":"); idx > 0 {
			key := strings.TrimSpace(trimmed[:idx])
			val := strings.TrimSpace(trimmed[idx+1:])
			cur[key] = val
			curKey = key
			if key == "recommendation_agent" && val != "" {
				curDirectiveLines = append(curDirectiveLines, val)
			}
		}
	}
	if inBlock {
		flush()
	}
	return threats
}

func parseDirectives(lines []string) []Directive {
	var out []Directive
	for _, line := range lines {
		for _, p := range directivePrefixes {
			if strings.HasPrefix(line, p.prefix) {
				out = append(out, Directive{
					Action:    p.action,
					Condition: strings.TrimSpace(strings.TrimPrefix(line, p.prefix)),
				})
				break
			}
		}
	}
	return out
}
