package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// LegalizeTestSpec is a single end-to-end legalization case
type LegalizeTestSpec struct {
	Name      string   `yaml:"name"`
	Input     string   `yaml:"input"`
	Expect    []string `yaml:"expect"`     // Strings that must appear in output
	ExpectNot []string `yaml:"expect_not"` // Strings that must NOT appear in output
	Skip      string   `yaml:"skip,omitempty"`
}

// LegalizeTestFile is the legalize.yaml file structure
type LegalizeTestFile struct {
	Tests []LegalizeTestSpec `yaml:"tests"`
}

// TestLegalizeYAML runs the yaml-driven end-to-end cases through the CLI
// with the built-in rules
func TestLegalizeYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/legalize.yaml")
	if err != nil {
		t.Fatalf("legalize.yaml not found: %v", err)
	}

	var testFile LegalizeTestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse legalize.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}

			tmpDir := t.TempDir()
			inputFile := filepath.Join(tmpDir, "test.mir")
			if err := os.WriteFile(inputFile, []byte(tc.Input), 0644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			resetFlags()
			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs([]string{inputFile})
			if err := cmd.Execute(); err != nil {
				t.Fatalf("ralph-mir failed: %v\nStderr: %s", err, errOut.String())
			}

			output := out.String()
			for _, exp := range tc.Expect {
				if !strings.Contains(output, exp) {
					t.Errorf("expected output to contain %q\nGot:\n%s", exp, output)
				}
			}
			for _, exp := range tc.ExpectNot {
				if strings.Contains(output, exp) {
					t.Errorf("expected output NOT to contain %q\nGot:\n%s", exp, output)
				}
			}
		})
	}
}

// TestLegalizedOutputReparses checks the printed result is itself valid
// input, and that once register numbering settles (the first reparse
// renumbers) further passes leave the text untouched
func TestLegalizedOutputReparses(t *testing.T) {
	data, err := os.ReadFile("../../testdata/legalize.yaml")
	if err != nil {
		t.Fatalf("legalize.yaml not found: %v", err)
	}
	var testFile LegalizeTestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse legalize.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}

			tmpDir := t.TempDir()
			inputFile := filepath.Join(tmpDir, "test.mir")
			if err := os.WriteFile(inputFile, []byte(tc.Input), 0644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			resetFlags()
			var first, errOut bytes.Buffer
			cmd := newRootCmd(&first, &errOut)
			cmd.SetArgs([]string{inputFile})
			if err := cmd.Execute(); err != nil {
				t.Fatalf("first pass failed: %v\nStderr: %s", err, errOut.String())
			}

			secondInput := filepath.Join(tmpDir, "second.mir")
			if err := os.WriteFile(secondInput, first.Bytes(), 0644); err != nil {
				t.Fatalf("failed to write second input: %v", err)
			}

			resetFlags()
			var second bytes.Buffer
			cmd = newRootCmd(&second, &errOut)
			cmd.SetArgs([]string{secondInput})
			if err := cmd.Execute(); err != nil {
				t.Fatalf("second pass failed: %v\nStderr: %s", err, errOut.String())
			}

			thirdInput := filepath.Join(tmpDir, "third.mir")
			if err := os.WriteFile(thirdInput, second.Bytes(), 0644); err != nil {
				t.Fatalf("failed to write third input: %v", err)
			}

			resetFlags()
			var third bytes.Buffer
			cmd = newRootCmd(&third, &errOut)
			cmd.SetArgs([]string{thirdInput})
			if err := cmd.Execute(); err != nil {
				t.Fatalf("third pass failed: %v\nStderr: %s", err, errOut.String())
			}

			if second.String() != third.String() {
				t.Errorf("pass is not stable\n--- second ---\n%s\n--- third ---\n%s", second.String(), third.String())
			}
		})
	}
}
