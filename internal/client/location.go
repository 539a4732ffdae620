package client

import (
	"net/url"
	"sync"
)

// Location is an in-memory navigation address.
type Location struct {
	mu  sync.Mutex
	cur *url.URL
}

// NewLocation parses raw as the starting address.
func NewLocation(raw string) (*Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &Location{cur: u}, nil
}

func (l *Location) Current() *url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := *l.cur
	return &u
}

func (l *Location) Replace(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *u
	l.cur = &c
}

// Navigate implements onboarding.Navigator by replacing the path.
func (l *Location) Navigate(route string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := *l.cur
	u.Path = route
	u.RawQuery = ""
	l.cur = &u
}
