package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type target struct {
	Method   string `yaml:"method"`
	Path     string `yaml:"path"`
	Role     string `yaml:"role"`
	Expect   int    `yaml:"expect"`
	Critical bool   `yaml:"critical"`
}

type config struct {
	Targets []target `yaml:"targets"`
}

type probe struct {
	Target   target
	Status   int
	Error    error
	Duration time.Duration
}

func (p probe) ok() bool {
	return p.Error == nil && p.Status == p.Target.Expect
}

func main() {
	var (
		base        string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "smoke_check", "targets.yaml"), "Path to YAML targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}
	tokens := tokensFromEnv(os.Getenv)

	client := &http.Client{Timeout: timeout}
	var (
		probes   []probe
		breaking int
		optional int
	)
	for _, t := range targets {
		p := runProbe(client, base, tokens, t)
		if !p.ok() {
			if t.Critical {
				breaking++
			} else {
				optional++
			}
		}
		probes = append(probes, p)
	}

	printReport(os.Stdout, probes)
	fmt.Printf("Critical failures: %d, Optional failures: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	for i := range cfg.Targets {
		if cfg.Targets[i].Expect == 0 {
			cfg.Targets[i].Expect = http.StatusOK
		}
	}
	return cfg.Targets, nil
}

// tokensFromEnv reads SMOKE_TOKEN_<ROLE> variables, e.g. SMOKE_TOKEN_EDITOR.
func tokensFromEnv(getenv func(string) string) map[string]string {
	tokens := make(map[string]string)
	for _, role := range []string{"editor", "reviewer", "author"} {
		if v := strings.TrimSpace(getenv("SMOKE_TOKEN_" + strings.ToUpper(role))); v != "" {
			tokens[role] = v
		}
	}
	return tokens
}

func runProbe(client *http.Client, base string, tokens map[string]string, tgt target) probe {
	p := probe{Target: tgt}
	if client == nil {
		p.Error = errors.New("nil client")
		return p
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		p.Error = err
		return p
	}
	if tgt.Role != "" {
		token, ok := tokens[tgt.Role]
		if !ok {
			p.Error = fmt.Errorf("no token for role %q", tgt.Role)
			return p
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	p.Duration = time.Since(start)
	if err != nil {
		p.Error = err
		return p
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	p.Status = resp.StatusCode
	return p
}

func printReport(w io.Writer, results []probe) {
	fmt.Fprintln(w, "Smoke Check Report")
	fmt.Fprintln(w, "==================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.ok() {
			status = "FAIL"
		}
		role := res.Target.Role
		if role == "" {
			role = "anonymous"
		}
		fmt.Fprintf(w, "[%s] %s %s as %s\n", status, res.Target.Method, res.Target.Path, role)
		if res.Error != nil {
			fmt.Fprintf(w, "  Error: %v\n", res.Error)
			continue
		}
		fmt.Fprintf(w, "  Status: %d, expected %d (%s) | Critical: %t\n", res.Status, res.Target.Expect, res.Duration, res.Target.Critical)
	}
}
