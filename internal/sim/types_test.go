package sim

import (
	"math"
	"testing"
)

func TestVec3_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		v     Vec3
		valid bool
	}{
		{"origin", Vec3{}, true},
		{"normal", Vec3{1, 2, 3}, true},
		{"with NaN", Vec3{1, math.NaN(), 0}, false},
		{"with +Inf", Vec3{0, 0, math.Inf(1)}, false},
		{"with -Inf", Vec3{math.Inf(-1), 0, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestVec3_Arithmetic(t *testing.T) {
	a := Vec3{3, 4, 0}
	if a.Length() != 5 {
		t.Errorf("expected length 5, got %f", a.Length())
	}
	if got := a.Add(Vec3{1, 1, 1}).Sub(Vec3{1, 1, 1}); got != a {
		t.Errorf("add/sub mismatch: %v", got)
	}
	if got := VecOf(a.Scale(2).Array()); got != (Vec3{6, 8, 0}) {
		t.Errorf("unexpected scale result %v", got)
	}
	if got := (Vec3{1, 0, 0}).Cross(Vec3{0, 1, 0}); got != (Vec3{0, 0, 1}) {
		t.Errorf("x cross y = %v", got)
	}
	if got := a.Normalize(); math.Abs(got.Length()-1) > 1e-12 || math.Abs(got.Dot(a)-5) > 1e-12 {
		t.Errorf("unexpected unit vector %v", got)
	}
	if got := (Vec3{}).Normalize(); got != (Vec3{}) {
		t.Errorf("zero vector should stay zero, got %v", got)
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		st       Status
		name     string
		terminal bool
	}{
		{Idle, "IDLE", false},
		{Running, "RUNNING", false},
		{Finished, "FINISHED", true},
		{Errored, "ERRORED", true},
		{Status(9), "Status(9)", false},
	}

	for _, tt := range tests {
		if tt.st.String() != tt.name {
			t.Errorf("String() = %s, want %s", tt.st, tt.name)
		}
		if tt.st.Terminal() != tt.terminal {
			t.Errorf("%s: Terminal() = %v", tt.name, tt.st.Terminal())
		}
	}
}

func TestSnapshotClone(t *testing.T) {
	s := Snapshot{Particles: []Particle{{Species: Species{40, 1}}}}
	c := s.clone()
	c.Particles[0].Species.Mass = 9
	if s.Particles[0].Species.Mass != 40 {
		t.Error("clone shares particle storage")
	}
	if s.NumIons() != 1 {
		t.Errorf("expected 1 ion, got %d", s.NumIons())
	}
	if got := (Species{40, 1}).String(); got != "40/+1" {
		t.Errorf("unexpected species string %q", got)
	}
}
