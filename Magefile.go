//go:build mage

// ghosttext mage targets: build, dev, test, lint, install, etc.
package main

import (
    "fmt"
    "os"
    "path/filepath"

    "github.com/magefile/mage/mg"
    "github.com/magefile/mage/sh"
)

// Default target: build both binaries.
var Default = Build

var binaries = map[string]string{
    "ghosttext-lsp": "./cmd/ghosttext-lsp",
    "ghosttext":     "./cmd/ghosttext",
}

// Build builds the ghosttext LSP and CLI binaries.
func Build() error {
    mg.Deps(BuildLSP, BuildCLI)
    return nil
}

// BuildLSP builds the LSP server binary.
func BuildLSP() error {
    return build("ghosttext-lsp")
}

// BuildCLI builds the CLI binary.
func BuildCLI() error {
    return build("ghosttext")
}

func build(name string, extra ...string) error {
    args := append([]string{"build"}, extra...)
    args = append(args, "-o", name, binaries[name])
    return sh.RunV("go", args...)
}

// Dev runs tests, vet and lint, then builds both binaries with the race detector.
func Dev() error {
    mg.Deps(Test, Vet, Lint)
    if err := build("ghosttext-lsp", "-race"); err != nil {
        return err
    }
    return build("ghosttext", "-race")
}

// Run launches the LSP server via go run, logging to stderr.
func Run() error {
    mg.Deps(Dev)
    return sh.RunV("go", "run", binaries["ghosttext-lsp"], "--log", "")
}

// Trim pipes a fenced sample reply through "ghosttext trim".
func Trim() error {
    mg.Deps(BuildCLI)
    cmd := "printf '```go\\nfoo();\\nbar();\\n```\\n' | ./ghosttext trim --display"
    return sh.RunV("bash", "-lc", cmd)
}

// Install copies built binaries to GOPATH/bin (defaults to ~/go/bin when GOPATH is unset).
func Install() error {
    mg.Deps(Build)
    gopath := os.Getenv("GOPATH")
    if gopath == "" {
        home, err := os.UserHomeDir()
        if err != nil {
            return fmt.Errorf("resolve home: %w", err)
        }
        gopath = filepath.Join(home, "go")
    }
    bin := filepath.Join(gopath, "bin")
    if err := os.MkdirAll(bin, 0o755); err != nil {
        return err
    }
    for name := range binaries {
        if err := sh.RunV("cp", "-v", "./"+name, bin+"/"); err != nil {
            return err
        }
    }
    return nil
}

// Test runs the test suite with the race detector.
func Test() error {
    if err := sh.RunV("go", "clean", "-testcache"); err != nil {
        return err
    }
    return sh.RunV("go", "test", "-race", "./...")
}

// Vet runs go vet.
func Vet() error {
    return sh.RunV("go", "vet", "./...")
}

// Lint runs golangci-lint.
func Lint() error {
    return sh.RunV("golangci-lint", "run")
}

// DevInstall installs helpful developer tools.
func DevInstall() error {
    if err := sh.RunV("go", "install", "golang.org/x/tools/gopls@latest"); err != nil {
        return err
    }
    return sh.RunV("go", "install", "github.com/golangci/golangci-lint/cmd/golangci-lint@latest")
}
