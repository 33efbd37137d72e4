// Package payload decides how a worker loads and runs a test file.
//
// A test file is run by the first rule whose pattern matches it. Rules are
// read from a YAML document:
//
//	rules:
//	  - match: "*_test.go"
//	    command: ["go", "test", "-count=1", "{dir}"]
//	    names_args: ["-run", "^({names})$"]
//	  - match: "*.sh"
//	    command: ["sh", "{file}"]
//
// Patterns without a slash match the base name; patterns with a slash match
// the cleaned path. Command arguments may use the placeholders {file},
// {dir}, {base} and {names} (test names joined with "|"). names_args is only
// appended when test names were requested.
package payload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps a file pattern to the command that runs matching test files.
type Rule struct {
	Match     string   `yaml:"match"`
	Command   []string `yaml:"command"`
	NamesArgs []string `yaml:"names_args,omitempty"`
}

// Rules is an ordered rule list; the first match wins.
type Rules struct {
	Rules []Rule `yaml:"rules"`
}

// ErrNoRule is returned when no rule matches a test file.
var ErrNoRule = errors.New("no payload rule matches")

// DefaultRules returns the built-in rules: Go test files, shell scripts, and
// direct execution for everything else.
func DefaultRules() *Rules {
	return &Rules{Rules: []Rule{
		{
			Match:     "*_test.go",
			Command:   []string{"go", "test", "-count=1", "{dir}"},
			NamesArgs: []string{"-run", "^({names})$"},
		},
		{
			Match:   "*.sh",
			Command: []string{"sh", "{file}"},
		},
		{
			Match:   "*",
			Command: []string{"{file}"},
		},
	}}
}

// LoadRules reads rules from a YAML file. An empty path yields the defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rules document.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse payload rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks every rule has a usable pattern and command.
func (r *Rules) Validate() error {
	if len(r.Rules) == 0 {
		return errors.New("payload rules: at least one rule is required")
	}
	var errs []error
	for i, rule := range r.Rules {
		if rule.Match == "" {
			errs = append(errs, fmt.Errorf("payload rule %d: match is required", i))
		} else if _, err := filepath.Match(rule.Match, ""); err != nil {
			errs = append(errs, fmt.Errorf("payload rule %d: bad pattern %q: %w", i, rule.Match, err))
		}
		if len(rule.Command) == 0 || rule.Command[0] == "" {
			errs = append(errs, fmt.Errorf("payload rule %d: command is required", i))
		}
	}
	return errors.Join(errs...)
}

// Find returns the first rule matching testFile.
func (r *Rules) Find(testFile string) (*Rule, error) {
	clean := filepath.ToSlash(filepath.Clean(testFile))
	base := filepath.Base(testFile)
	for i := range r.Rules {
		rule := &r.Rules[i]
		subject := base
		if strings.Contains(rule.Match, "/") {
			subject = clean
		}
		if ok, _ := filepath.Match(rule.Match, subject); ok {
			return rule, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoRule, testFile)
}

// Args expands the rule's command line for testFile and names.
func (rule *Rule) Args(testFile string, names []string) []string {
	vars := strings.NewReplacer(
		"{file}", runnable(testFile),
		"{dir}", runnable(filepath.Dir(testFile)),
		"{base}", filepath.Base(testFile),
		"{names}", strings.Join(names, "|"),
	)

	args := make([]string, 0, len(rule.Command)+len(rule.NamesArgs))
	for _, a := range rule.Command {
		args = append(args, vars.Replace(a))
	}
	if len(names) > 0 {
		for _, a := range rule.NamesArgs {
			args = append(args, vars.Replace(a))
		}
	}
	return args
}

// Command builds the command that runs testFile. It returns a nil command
// when the file is empty: there is nothing to load, which counts as success.
func (r *Rules) Command(ctx context.Context, testFile string, names []string) (*exec.Cmd, error) {
	empty, err := IsEmpty(testFile)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	rule, err := r.Find(testFile)
	if err != nil {
		return nil, err
	}
	args := rule.Args(testFile, names)
	return exec.CommandContext(ctx, args[0], args[1:]...), nil
}

// Binaries returns the distinct program names the rules invoke, skipping
// commands that run the test file itself.
func (r *Rules) Binaries() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rule := range r.Rules {
		bin := rule.Command[0]
		if strings.Contains(bin, "{") || seen[bin] {
			continue
		}
		seen[bin] = true
		out = append(out, bin)
	}
	return out
}

// IsEmpty reports whether testFile exists and holds no content.
func IsEmpty(testFile string) (bool, error) {
	info, err := os.Stat(testFile)
	if err != nil {
		return false, fmt.Errorf("load test file: %w", err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("load test file: %s is a directory", testFile)
	}
	return info.Size() == 0, nil
}

// runnable makes a relative path explicit so exec does not search PATH.
func runnable(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	p = filepath.Clean(p)
	if p == "." {
		return p
	}
	return "./" + filepath.ToSlash(p)
}
