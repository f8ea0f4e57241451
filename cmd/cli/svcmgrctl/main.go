package main

import (
	"fmt"
	"net"
	"os"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/hsu-svcmgr-go/pkg/control"
	"github.com/core-tools/hsu-svcmgr-go/pkg/domain"
	"github.com/core-tools/hsu-svcmgr-go/pkg/logging"
)

type flagOptions struct {
	ControlSocket string `long:"control-socket" description:"path to the supervisor's admin control socket" required:"true"`
	Action        string `long:"action" description:"enable|disable|restart" required:"true"`
	Path          string `long:"path" description:"service or service/instance path" required:"true"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-client , ", module)
}

func parsePath(s string) domain.ServicePath {
	svc, inst, found := strings.Cut(s, "/")
	if !found {
		return domain.ServicePath{Service: svc}
	}
	return domain.ServicePath{Service: svc, Instance: inst}
}

func parseAction(s string) (domain.AdminReqSubType, error) {
	switch s {
	case "enable":
		return domain.AdminReqEnable, nil
	case "disable":
		return domain.AdminReqDisable, nil
	case "restart":
		return domain.AdminReqRestart, nil
	default:
		return "", fmt.Errorf("unknown action: %s", s)
	}
}

func main() {
	var opts flagOptions
	parser := flags.NewParser(&opts, flags.HelpFlag)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(logPrefix("hsu-svcmgr"), logging.DefaultZapConfig())
	if err != nil {
		fmt.Printf("Failed to create logger: %v", err)
		os.Exit(1)
	}

	sub, err := parseAction(opts.Action)
	if err != nil {
		logger.Errorf("Invalid action: %v", err)
		os.Exit(1)
	}

	conn, err := net.Dial("unix", opts.ControlSocket)
	if err != nil {
		logger.Errorf("Failed to connect to control socket: %v", err)
		os.Exit(1)
	}
	defer conn.Close()

	codec := control.NewCodec(conn)
	note := domain.NewAdminReq(parsePath(opts.Path), sub, domain.SeverityRestart)
	if err := codec.WriteNote(note); err != nil {
		logger.Errorf("Failed to send note: %v", err)
		os.Exit(1)
	}

	logger.Infof("Sent %s for %s", opts.Action, opts.Path)
}
