package upstream

import (
	"errors"
	"testing"
)

func twoTargetPool() *Pool {
	return &Pool{
		Name: "workers",
		Targets: []*Target{
			NewTarget("127.0.0.1:9001", 1, 0, 3),
			NewTarget("127.0.0.1:9002", 1, 0, 3),
		},
	}
}

func TestPickNeverSelectsDeadWhileHealthyExists(t *testing.T) {
	pool := twoTargetPool()
	dead := pool.Targets[0]
	for i := 0; i < 3; i++ {
		dead.RecordProbeFailure()
	}

	for i := 0; i < 50; i++ {
		target, err := pool.Pick(nil)
		if err != nil {
			t.Fatalf("Pick failed: %v", err)
		}
		if target == dead {
			t.Fatal("Pick selected a Dead target while a Healthy one exists")
		}
		target.Release()
	}
}

func TestPickAllDead(t *testing.T) {
	pool := twoTargetPool()
	for _, target := range pool.Targets {
		for i := 0; i < 3; i++ {
			target.RecordProbeFailure()
		}
	}

	_, err := pool.Pick(nil)
	if !errors.Is(err, ErrNoHealthyTarget) {
		t.Fatalf("err = %v, want ErrNoHealthyTarget", err)
	}
	if pool.Healthy() {
		t.Error("pool with all targets Dead must report unhealthy")
	}
}

func TestPickSuspectedStillEligible(t *testing.T) {
	pool := twoTargetPool()
	pool.Targets[0].RecordProbeFailure() // Suspected
	for i := 0; i < 3; i++ {
		pool.Targets[1].RecordProbeFailure() // Dead
	}

	target, err := pool.Pick(nil)
	if err != nil {
		t.Fatalf("Pick failed: %v", err)
	}
	if target != pool.Targets[0] {
		t.Error("Suspected target should remain eligible when the rest are Dead")
	}
	target.Release()
}

func TestPickLeastConnectionsBalance(t *testing.T) {
	// 100 requests across two equal-weight targets held in flight should
	// split 45-55 per side (least-connections alternates under load).
	pool := twoTargetPool()

	counts := map[*Target]int{}
	var held []*Target
	for i := 0; i < 100; i++ {
		target, err := pool.Pick(nil)
		if err != nil {
			t.Fatalf("Pick failed: %v", err)
		}
		counts[target]++
		held = append(held, target)
	}
	for _, target := range held {
		target.Release()
	}

	for _, target := range pool.Targets {
		if n := counts[target]; n < 45 || n > 55 {
			t.Errorf("target %s received %d requests, want 45-55", target.Address, n)
		}
	}
}

func TestPickWeightedDistribution(t *testing.T) {
	// A weight-2 target should absorb roughly twice the held load of a
	// weight-1 target.
	pool := &Pool{
		Name: "workers",
		Targets: []*Target{
			NewTarget("127.0.0.1:9001", 2, 0, 3),
			NewTarget("127.0.0.1:9002", 1, 0, 3),
		},
	}

	counts := map[*Target]int{}
	for i := 0; i < 90; i++ {
		target, err := pool.Pick(nil)
		if err != nil {
			t.Fatalf("Pick failed: %v", err)
		}
		counts[target]++
	}

	heavy := counts[pool.Targets[0]]
	light := counts[pool.Targets[1]]
	if heavy < 55 || heavy > 65 {
		t.Errorf("weight-2 target received %d of 90, want ~60", heavy)
	}
	if light < 25 || light > 35 {
		t.Errorf("weight-1 target received %d of 90, want ~30", light)
	}
}

func TestPickExcludesTriedTargets(t *testing.T) {
	pool := twoTargetPool()

	first, err := pool.Pick(nil)
	if err != nil {
		t.Fatal(err)
	}

	second, err := pool.Pick(map[*Target]bool{first: true})
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Error("retry should land on a different target when one exists")
	}
}

func TestPickExclusionRelaxedWhenExhausted(t *testing.T) {
	pool := &Pool{
		Name:    "solo",
		Targets: []*Target{NewTarget("127.0.0.1:9001", 1, 0, 3)},
	}
	only := pool.Targets[0]

	target, err := pool.Pick(map[*Target]bool{only: true})
	if err != nil {
		t.Fatalf("Pick with sole target excluded should still pick it, got %v", err)
	}
	if target != only {
		t.Error("expected the sole target")
	}
}

func TestPickSkipsCappedTargets(t *testing.T) {
	pool := &Pool{
		Name: "workers",
		Targets: []*Target{
			NewTarget("127.0.0.1:9001", 1, 1, 3),
			NewTarget("127.0.0.1:9002", 1, 0, 3),
		},
	}

	a, err := pool.Pick(nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := pool.Pick(nil)
	if err != nil {
		t.Fatal(err)
	}
	c, err := pool.Pick(nil)
	if err != nil {
		t.Fatal(err)
	}
	// The capped target holds at most one of the three.
	capped := 0
	for _, target := range []*Target{a, b, c} {
		if target == pool.Targets[0] {
			capped++
		}
	}
	if capped > 1 {
		t.Errorf("capped target (max_connections=1) holds %d in-flight, want <= 1", capped)
	}
}

func BenchmarkPick(b *testing.B) {
	pool := &Pool{
		Name: "workers",
		Targets: []*Target{
			NewTarget("127.0.0.1:9001", 1, 0, 3),
			NewTarget("127.0.0.1:9002", 2, 0, 3),
			NewTarget("127.0.0.1:9003", 1, 0, 3),
		},
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		target, err := pool.Pick(nil)
		if err != nil {
			b.Fatal(err)
		}
		target.Release()
	}
}
