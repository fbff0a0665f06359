// Package session tracks the sticky-session cookies a load balancer uses to
// pin every request from this sync to the same backend (spec.md §3 Session,
// §4.5). Grounded on the teacher's internal/fetcher/session.go cookie-jar
// idiom, restructured from a per-domain jar map into one shared object: the
// backward and forward retrievers hold the *same* Session by reference and
// must both observe the same affinity, so a map keyed by domain would hide
// the one comparison that actually matters.
package session

import (
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// Affinity cookie names the upstream load balancer sets (spec.md §3).
const (
	CookieAWSELB   = "AWSELB"
	CookieServerID = "SERVER_ID"
)

// Affinity is the pair of sticky cookie values a backend identifies itself
// with. The zero value means "nothing observed yet".
type Affinity struct {
	AWSELB   string
	ServerID string
}

func (a Affinity) empty() bool { return a.AWSELB == "" && a.ServerID == "" }

// conflicts reports whether a and other name different backends on any
// field both have populated.
func (a Affinity) conflicts(other Affinity) bool {
	if a.AWSELB != "" && other.AWSELB != "" && a.AWSELB != other.AWSELB {
		return true
	}
	if a.ServerID != "" && other.ServerID != "" && a.ServerID != other.ServerID {
		return true
	}
	return false
}

// Session is the mutable, shared sticky-session state both retrievers read
// and write. Its zero value is not usable; construct with New.
type Session struct {
	mu       sync.Mutex
	jar      *cookiejar.Jar
	affinity Affinity
}

// New builds an empty Session with a fresh cookie jar.
func New() (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Session{jar: jar}, nil
}

// Jar returns the cookie jar for use as an http.Client's Jar.
func (s *Session) Jar() *cookiejar.Jar {
	return s.jar
}

// Observe records the affinity cookies present for u after a response,
// merging them into the shared state. It never rejects — divergence
// detection is the retriever's job, via CheckAffinity, since only the
// retriever knows whether ITS OWN previous fetch disagrees with the
// backend the other retriever is now pinned to (spec.md §5).
func (s *Session) Observe(u *url.URL) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.jar.Cookies(u) {
		switch c.Name {
		case CookieAWSELB:
			s.affinity.AWSELB = c.Value
		case CookieServerID:
			s.affinity.ServerID = c.Value
		}
	}
}

// Current returns the currently tracked affinity.
func (s *Session) Current() Affinity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.affinity
}

// CheckAffinity compares a retriever's last-seen affinity against the
// session's current affinity and returns the updated value to remember.
// ok is false when both sides have a value for the same cookie and they
// disagree — the "LB server mismatch" fault of spec.md §4.3 step 1.
func (s *Session) CheckAffinity(lastSeen Affinity) (updated Affinity, ok bool) {
	current := s.Current()
	if lastSeen.conflicts(current) {
		return lastSeen, false
	}
	if current.empty() {
		return lastSeen, true
	}
	return current, true
}

// Clear drops the tracked affinity and all jar cookies — used by RetryLoop
// on ResourceNotFound, which on this feed means the backend the load
// balancer pinned us to no longer recognizes our cursor (spec.md §4.2).
func (s *Session) Clear(host *url.URL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.affinity = Affinity{}
	jar, err := cookiejar.New(nil)
	if err == nil {
		s.jar = jar
	}
	_ = host
}

// HasAffinity reports whether any sticky cookie has been observed yet.
func (s *Session) HasAffinity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.affinity.empty()
}
