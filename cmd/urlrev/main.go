package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"urlrev/misc"
	"urlrev/rewrite"
	"urlrev/state"
	"urlrev/urlrev"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "appends content based revision tokens to url() references in style sheets",
		Version:         misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash(),
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		CommandNotFound: subcommandNotFoundHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, DefaultText: "",
				Usage: "load configuration from `FILE` (YAML), per user configuration file is used when present"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"},
				Usage: "changes program behavior to help troubleshooting, produces report archive"},
		},
		Commands: []*cli.Command{
			{
				Name:               "rewrite",
				Usage:              "Appends revision tokens to url() references of style sheet(s)",
				ArgsUsage:          "SOURCE [DESTINATION]",
				CustomHelpTemplate: rewriteHelp,
				OnUsageError:       usageErrorHandler,
				Action:             rewrite.Run,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "in-place", Aliases: []string{"i"}, Usage: "rewrite source files, DESTINATION is ignored"},
					&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "replace existing files in DESTINATION"},
					&cli.BoolFlag{Name: "strict", Usage: "fail when any declaration could not be revisioned"},
					&cli.StringFlag{Name: "charset", Usage: "force `ENCODING` of all processed style sheets (IANA character set name)"},
					&cli.BoolFlag{Name: "remote", Usage: "process http(s):// and protocol relative references (overrides configuration)"},
					&cli.StringFlag{Name: "absolute-path", Usage: "resolve site absolute references against `DIR` (overrides configuration)"},
					&cli.IntFlag{Name: "hash-length", Usage: "number of digest characters to keep (overrides configuration)"},
					&cli.StringFlag{Name: "algorithm",
						Usage: "digest `NAME`: " + strings.Join(urlrev.Algorithms(), ", ") + " (overrides configuration)"},
					&cli.StringFlag{Name: "template",
						Usage: "Go `TEMPLATE` producing new reference instead of query parameter (overrides configuration)"},
				},
			},
			{
				Name:               "dumpconfig",
				Usage:              "Dumps either default or actual configuration (YAML)",
				ArgsUsage:          "[DESTINATION]",
				CustomHelpTemplate: dumpConfigHelp,
				OnUsageError:       usageErrorHandler,
				Action:             outputConfiguration,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
				},
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	err := newApp().Run(ctx, os.Args)
	stop()

	if err != nil {
		// log is either not ready yet or already closed
		if !errLogged {
			fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
		}
		os.Exit(1)
	}
}
