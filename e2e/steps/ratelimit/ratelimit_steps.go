package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
	SetClientIP(ip string)
}

// RegisterSteps registers the session-start throttling steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I am a client with IP "([^"]*)"$`, steps.clientWithIP)
	ctx.Step(`^I start (\d+) registration sessions$`, steps.startNSessions)
	ctx.Step(`^every session start should have succeeded$`, steps.allSucceeded)
	ctx.Step(`^the next session start should be rate limited$`, steps.nextShouldBeLimited)
	ctx.Step(`^the response should carry a Retry-After header$`, steps.retryAfterPresent)
}

type ratelimitSteps struct {
	tc       TestContext
	statuses []int
}

func (s *ratelimitSteps) clientWithIP(ctx context.Context, ip string) error {
	s.tc.SetClientIP(ip)
	s.statuses = nil
	return nil
}

func (s *ratelimitSteps) startNSessions(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := s.tc.POST("/registration/sessions", nil); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) allSucceeded(ctx context.Context) error {
	for i, status := range s.statuses {
		if status != 201 {
			return fmt.Errorf("session start %d returned %d", i+1, status)
		}
	}
	return nil
}

func (s *ratelimitSteps) nextShouldBeLimited(ctx context.Context) error {
	if err := s.tc.POST("/registration/sessions", nil); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 429 {
		return fmt.Errorf("expected 429, got %d", status)
	}
	if remaining := s.tc.GetLastResponseHeader("X-RateLimit-Remaining"); remaining != "0" {
		return fmt.Errorf("expected X-RateLimit-Remaining 0, got %q", remaining)
	}
	return nil
}

func (s *ratelimitSteps) retryAfterPresent(ctx context.Context) error {
	v := s.tc.GetLastResponseHeader("Retry-After")
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 1 {
		return fmt.Errorf("invalid Retry-After %q", v)
	}
	return nil
}
