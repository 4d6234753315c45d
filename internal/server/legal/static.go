package legal

import (
	"context"
	"strings"
)

// StaticSource answers from fixed allow-lists. An empty list allows any
// non-empty tag, or any two-letter country code.
type StaticSource struct {
	tags      map[string]struct{}
	countries map[string]struct{}
}

func NewStaticSource(tags, countries []string) *StaticSource {
	s := &StaticSource{
		tags:      make(map[string]struct{}, len(tags)),
		countries: make(map[string]struct{}, len(countries)),
	}
	for _, t := range tags {
		s.tags[t] = struct{}{}
	}
	for _, c := range countries {
		s.countries[strings.ToUpper(c)] = struct{}{}
	}
	return s
}

func (s *StaticSource) IsValidTag(_ context.Context, tag string) (bool, error) {
	if tag == "" {
		return false, nil
	}
	if len(s.tags) == 0 {
		return true, nil
	}
	_, ok := s.tags[tag]
	return ok, nil
}

func (s *StaticSource) IsValidCountry(_ context.Context, code string) (bool, error) {
	if len(s.countries) == 0 {
		return len(code) == 2, nil
	}
	_, ok := s.countries[strings.ToUpper(code)]
	return ok, nil
}
