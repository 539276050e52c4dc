package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	toolLoopWarnThreshold     = 3 // identical call this many times in a row → nudge
	toolLoopCriticalThreshold = 5 // identical call this many times in a row → abort
)

// toolLoopState detects a model repeatedly calling the same tool with the
// same arguments and getting the same result back — a sign it's stuck
// rather than making progress.
type toolLoopState struct {
	lastHash  string
	repeats   int
	lastResultHash string
	resultRepeats  int
}

// record hashes name+args and updates the repeat counter, resetting it
// whenever the call changes. Returns the call's hash for recordResult.
func (s *toolLoopState) record(name string, args map[string]interface{}) string {
	hash := hashCall(name, args)
	if hash == s.lastHash {
		s.repeats++
	} else {
		s.lastHash = hash
		s.repeats = 1
	}
	return hash
}

// recordResult tracks whether the result for a repeated call is itself
// repeating — a call that legitimately changes state each time (e.g.
// polling a counter) shouldn't trip the detector even if arguments match.
func (s *toolLoopState) recordResult(hash, result string) {
	resultHash := hashString(result)
	if hash == s.lastHash && resultHash == s.lastResultHash {
		s.resultRepeats++
	} else {
		s.resultRepeats = 1
	}
	s.lastResultHash = resultHash
}

// detect returns a severity ("", "warn", "critical") and a message to
// surface to the model once enough identical call+result cycles have
// accumulated for the given hash.
func (s *toolLoopState) detect(name, hash string) (level, message string) {
	if hash != s.lastHash {
		return "", ""
	}
	switch {
	case s.repeats >= toolLoopCriticalThreshold && s.resultRepeats >= toolLoopCriticalThreshold:
		return "critical", fmt.Sprintf("Tool %s has been called %d times in a row with the same arguments and result.", name, s.repeats)
	case s.repeats >= toolLoopWarnThreshold && s.resultRepeats >= toolLoopWarnThreshold:
		return "warn", fmt.Sprintf("Note: %s has returned the same result %d times in a row. Consider a different approach.", name, s.resultRepeats)
	default:
		return "", ""
	}
}

func hashCall(name string, args map[string]interface{}) string {
	argsJSON, _ := json.Marshal(args)
	return hashString(name + ":" + string(argsJSON))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
