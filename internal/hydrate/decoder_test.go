package hydrate

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

type fixture struct {
	Cases []fixtureCase `json:"cases"`
}

type fixtureCase struct {
	Name          string            `json:"name"`
	Options       []string          `json:"options"`
	Hooks         []string          `json:"hooks"`
	Input         string            `json:"input"`
	Expect        map[string]any    `json:"expect"`
	ExpectNumbers map[string]string `json:"expectNumbers"`
	ExpectErr     string            `json:"expectErr"`
}

func TestDecoderFromFixtures(t *testing.T) {
	fx := loadFixture(t, "hydrate_payloads.json")
	for _, tc := range fx.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			decoder := NewDecoder(buildOptions(tc)...)
			result, err := decoder.Decode(Context{Identifier: "Demo.Person"}, []byte(tc.Input))

			if tc.ExpectErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.ExpectErr)
				}
				if !strings.Contains(err.Error(), tc.ExpectErr) {
					t.Fatalf("expected error containing %q, got %v", tc.ExpectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}

			if tc.Expect != nil && !reflect.DeepEqual(tc.Expect, result) {
				t.Fatalf("decoded payload mismatch:\nwant: %#v\n got: %#v", tc.Expect, result)
			}
			for key, want := range tc.ExpectNumbers {
				number, ok := result[key].(json.Number)
				if !ok {
					t.Fatalf("expected json.Number for %q, got %T", key, result[key])
				}
				if number.String() != want {
					t.Fatalf("expected %s, got %s", want, number.String())
				}
			}
		})
	}
}

func TestApplyLeavesInputUntouched(t *testing.T) {
	decoder := NewDecoder(WithPreHook(renameFirst))
	input := map[string]any{"_first": "Jane", "nested": map[string]any{"k": "v"}}

	out, err := decoder.Apply(Context{}, input)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out["_firstName"] != "Jane" {
		t.Fatalf("expected renamed key, got %v", out)
	}
	if _, ok := input["_first"]; !ok {
		t.Fatalf("expected input untouched, got %v", input)
	}
	out["nested"].(map[string]any)["k"] = "changed"
	if input["nested"].(map[string]any)["k"] != "v" {
		t.Fatalf("expected nested map cloned")
	}
}

func TestApplyWithoutHooksReturnsInput(t *testing.T) {
	input := map[string]any{"a": 1}
	out, err := NewDecoder().Apply(Context{}, input)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !reflect.DeepEqual(out, input) {
		t.Fatalf("expected input returned, got %v", out)
	}
	if _, err := NewDecoder().Apply(Context{}, nil); err == nil {
		t.Fatalf("expected nil payload error")
	}
}

func buildOptions(tc fixtureCase) []DecoderOption {
	var options []DecoderOption
	for _, name := range tc.Options {
		if name == "use_number" {
			options = append(options, WithUseNumber())
		}
	}
	for _, name := range tc.Hooks {
		switch name {
		case "rename_first":
			options = append(options, WithPreHook(renameFirst))
		case "fail":
			options = append(options, WithPreHook(func(Context, map[string]any) (map[string]any, error) {
				return nil, errors.New("boom")
			}))
		}
	}
	return options
}

func renameFirst(_ Context, payload map[string]any) (map[string]any, error) {
	if value, ok := payload["_first"]; ok {
		delete(payload, "_first")
		payload["_firstName"] = value
	}
	return payload, nil
}

func loadFixture(t *testing.T, name string) fixture {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("unable to resolve caller for fixture %q", name)
	}
	path := filepath.Join(filepath.Dir(file), "testdata", name)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %q: %v", path, err)
	}
	var out fixture
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("failed to unmarshal fixture %q: %v", path, err)
	}
	return out
}
