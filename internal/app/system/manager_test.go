package system

import (
	"context"
	"errors"
	"testing"
)

type recordedService struct {
	name     string
	startErr error
	stopErr  error
	journal  *[]string
}

func (s *recordedService) Name() string { return s.name }

func (s *recordedService) Start(context.Context) error {
	*s.journal = append(*s.journal, "start:"+s.name)
	return s.startErr
}

func (s *recordedService) Stop(context.Context) error {
	*s.journal = append(*s.journal, "stop:"+s.name)
	return s.stopErr
}

func TestManagerStartStopOrder(t *testing.T) {
	m := NewManager()
	var journal []string
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordedService{name: name, journal: &journal}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(journal) != len(want) {
		t.Fatalf("journal = %v, want %v", journal, want)
	}
	for i := range want {
		if journal[i] != want[i] {
			t.Fatalf("journal[%d] = %s, want %s", i, journal[i], want[i])
		}
	}
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	m := NewManager()
	var journal []string
	if err := m.Register(&recordedService{name: "dup", journal: &journal}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordedService{name: "dup", journal: &journal}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestManagerRollsBackFailedStart(t *testing.T) {
	m := NewManager()
	var journal []string
	boom := errors.New("boom")
	services := []*recordedService{
		{name: "a", journal: &journal},
		{name: "b", journal: &journal, startErr: boom},
		{name: "c", journal: &journal},
	}
	for _, svc := range services {
		if err := m.Register(svc); err != nil {
			t.Fatalf("register %s: %v", svc.name, err)
		}
	}

	err := m.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("start error = %v, want %v", err, boom)
	}

	want := []string{"start:a", "start:b", "stop:a"}
	if len(journal) != len(want) {
		t.Fatalf("journal = %v, want %v", journal, want)
	}
	for i := range want {
		if journal[i] != want[i] {
			t.Fatalf("journal[%d] = %s, want %s", i, journal[i], want[i])
		}
	}
}

func TestManagerStopBeforeStartIsNoop(t *testing.T) {
	m := NewManager()
	var journal []string
	if err := m.Register(&recordedService{name: "a", journal: &journal}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(journal) != 0 {
		t.Fatalf("journal = %v, want empty", journal)
	}
}

func TestNoopService(t *testing.T) {
	svc := NoopService{ServiceName: "market"}
	if svc.Name() != "market" {
		t.Fatalf("name = %s", svc.Name())
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
