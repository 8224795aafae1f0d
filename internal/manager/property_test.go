package manager

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"personad/internal/engine"
	"personad/internal/engine/enginetest"
	"personad/internal/registry"
)

// slotFor is the slot key a persona should land in, or ok=false when the
// request must fail.
func slotFor(persona string) (key string, ok bool) {
	switch persona {
	case "lawyer", "doctor":
		return persona, true
	case "none", "", "chef":
		return "", true
	}
	return "", false
}

// After any request sequence the resident slot is the one the last
// successful request asked for, and a persona is only rebuilt when it was
// not already resident.
func TestResidentFollowsLastSuccess(t *testing.T) {
	reg, err := registry.Open(adaptersRoot(t, "lawyer", "doctor", "broken"), registry.Options{})
	if err != nil {
		t.Fatal(err)
	}
	rapid.Check(t, func(rt *rapid.T) {
		fake := enginetest.New()
		fake.Fail["broken"] = engine.StageMerge
		m := New(Config{
			Engine:         fake,
			Registry:       reg,
			BaseAliases:    []string{"none"},
			PromptPersonas: []string{"chef"},
		})
		defer m.Close(context.Background())

		seq := rapid.SliceOfN(rapid.SampledFrom([]string{"lawyer", "doctor", "none", "", "chef", "pirate", "broken"}), 1, 20).Draw(rt, "seq")
		resident, have := "", false
		builds := map[string]int{}
		for _, p := range seq {
			l, err := m.GetOrLoad(context.Background(), p)
			want, ok := slotFor(p)
			if !ok {
				if err == nil {
					l.Release()
					rt.Fatalf("%q: expected an error", p)
				}
			} else {
				if err != nil {
					rt.Fatalf("%q: %v", p, err)
				}
				if l.Persona() != want {
					rt.Fatalf("%q leased slot %q, want %q", p, l.Persona(), want)
				}
				l.Release()
				if !have || resident != want {
					builds[want]++
				}
				resident, have = want, true
			}
			got := residentKey(m)
			if !have && got != "<none>" {
				rt.Fatalf("nothing loaded yet but %q is resident", got)
			}
			if have && got != resident {
				rt.Fatalf("after %q resident=%q, want %q", p, got, resident)
			}
		}
		for key, n := range builds {
			if c := fake.Count(key, engine.StageLoad); c != n {
				rt.Fatalf("%q loaded %d times, want %d", key, c, n)
			}
			if key != "" {
				if c := fake.Count(key, engine.StageMerge); c != n {
					rt.Fatalf("%q merged %d times, want %d", key, c, n)
				}
			}
		}
		if fake.BaseTouched() {
			rt.Fatalf("base model modified")
		}
		if have && fake.Live() != 1 {
			rt.Fatalf("live models = %d, want 1", fake.Live())
		}
	})
}
