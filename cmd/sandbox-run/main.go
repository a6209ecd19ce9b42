// Command sandbox-run is a thin CLI wiring the sandbox library to a shell:
// it launches a target executable under full confinement and relays its
// stdin/stdout/stderr to the invoking terminal, the way `lxc exec` relays
// an instance's console.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sandboxexec/sandboxexec/sandbox"
)

func main() {
	// Must run before any other code: on the re-exec'd stage-2 invocation
	// this never returns (see sandbox.Init's doc comment).
	sandbox.Init()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	cwd        string
	envPairs   []string
	cmdString  string
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "sandbox-run [flags] -- command [args...]",
		Short: "Launch a command under OS-level confinement",
		Long: `sandbox-run launches an executable with no filesystem writes, no reads
outside the executable's own shared-library dependency closure, no network
access, and no signalling of other processes. It relays the child's
stdin/stdout/stderr to this process's own.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSandbox(opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.cwd, "cwd", ".", "working directory for the child process")
	flags.StringArrayVar(&opts.envPairs, "env", nil, "environment variable KEY=VALUE (repeatable)")
	flags.StringVar(&opts.cmdString, "cmd", "", "shell-quoted command line, as an alternative to trailing args")
	flags.StringVar(&opts.configPath, "config", "", "YAML file describing the launch environment")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log launch details to stderr")

	cmd.AddCommand(newDepsCmd())

	return cmd
}

func newDepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <executable>",
		Short: "Print the resolved dependency allow-list for an executable",
		Long: `deps resolves the given executable against PATH, walks its shared-library
dependency closure, and pretty-prints every path a launch of that
executable would grant read+execute access to under confinement.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			allowList, err := sandbox.ResolveReadAllowList(args[0])
			if err != nil {
				return err
			}
			printDepsTable(args[0], allowList)
			return nil
		},
	}
}

func printDepsTable(cmd string, allowList []string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Allowed read path"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCaption(true, fmt.Sprintf("resolved dependency allow-list for %s", cmd))
	for _, path := range allowList {
		table.Append([]string{path})
	}
	table.Render()
}

// fileConfig is the YAML shape accepted by --config: a declarative
// alternative to flags, grounded on the same config-file pattern LXD's own
// CLI uses for preseed/init data.
type fileConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Cwd     string            `yaml:"cwd"`
	Env     map[string]string `yaml:"env"`
}

func runSandbox(opts *rootOptions, args []string) error {
	logger := newCLILogger(opts.verbose)

	env, err := buildLaunchEnv(opts, args)
	if err != nil {
		return err
	}

	logger.Info("launching sandboxed child", logrus.Fields{
		"cmd": env.Cmd,
		"cwd": env.Cwd,
	})
	if opts.verbose {
		printLaunchSummary(env)
	}

	handler := &relayHandler{logger: logger}
	code, err := sandbox.SandboxChild(env, handler)
	if err != nil {
		if sandboxErr, ok := err.(*sandbox.Error); ok {
			logger.Error("launch failed", logrus.Fields{"kind": sandboxErr.Kind.String()})
		}
		return err
	}
	os.Exit(code)
	return nil
}

func buildLaunchEnv(opts *rootOptions, args []string) (sandbox.LaunchEnv, error) {
	var env sandbox.LaunchEnv
	env.Env = map[string]string{}
	env.FDs = sandbox.StdFDSet()
	env.Cwd = opts.cwd

	if opts.configPath != "" {
		data, err := os.ReadFile(opts.configPath)
		if err != nil {
			return env, fmt.Errorf("read config: %w", err)
		}
		var cfg fileConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return env, fmt.Errorf("parse config: %w", err)
		}
		env.Cmd = cfg.Command
		env.Args = cfg.Args
		if cfg.Cwd != "" {
			env.Cwd = cfg.Cwd
		}
		for k, v := range cfg.Env {
			env.Env[k] = v
		}
	}

	switch {
	case opts.cmdString != "":
		fields, err := shellquote.Split(opts.cmdString)
		if err != nil {
			return env, fmt.Errorf("parse --cmd: %w", err)
		}
		if len(fields) == 0 {
			return env, fmt.Errorf("--cmd produced no command")
		}
		env.Cmd = fields[0]
		env.Args = fields[1:]
	case len(args) > 0:
		env.Cmd = args[0]
		env.Args = args[1:]
	}

	if env.Cmd == "" {
		return env, fmt.Errorf("no command given: pass trailing args, --cmd, or --config")
	}

	for _, pair := range opts.envPairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return env, fmt.Errorf("invalid --env entry %q, expected KEY=VALUE", pair)
		}
		env.Env[k] = v
	}

	return env, nil
}

func printLaunchSummary(env sandbox.LaunchEnv) {
	table := tablewriter.NewWriter(os.Stderr)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.Append([]string{"command", env.Cmd})
	table.Append([]string{"args", strings.Join(env.Args, " ")})
	table.Append([]string{"cwd", env.Cwd})
	for _, fd := range env.FDs.Entries() {
		table.Append([]string{fmt.Sprintf("fd %d", fd.FD), fd.Mode.String()})
	}
	table.Render()
}

func newCLILogger(verbose bool) *sandbox.Logger {
	logger := sandbox.NewLogger(coloredStderr())
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

// relayHandler implements sandbox.Handler: it pipes this process's own
// stdin into the child and the child's stdout/stderr back out, the way a
// terminal-attached `exec` session behaves.
type relayHandler struct {
	logger *sandbox.Logger
}

func (h *relayHandler) Handle(child sandbox.Child) error {
	done := make(chan struct{}, 2)

	if w := child.TakeStreamToChild(0); w != nil {
		go func() {
			_, _ = io.Copy(w, os.Stdin)
			_ = w.Close()
		}()
	}
	if r := child.TakeStreamFromChild(1); r != nil {
		go func() {
			_, _ = io.Copy(os.Stdout, r)
			done <- struct{}{}
		}()
	} else {
		done <- struct{}{}
	}
	if r := child.TakeStreamFromChild(2); r != nil {
		go func() {
			_, _ = io.Copy(os.Stderr, r)
			done <- struct{}{}
		}()
	} else {
		done <- struct{}{}
	}

	<-done
	<-done
	return nil
}
