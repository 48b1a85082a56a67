package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/protocol"
	"github.com/momentics/hioload-socket/protocol/websocket"
)

// demoCommands is the command set served by "serve".
func demoCommands() map[string]api.CommandHandler {
	return map[string]api.CommandHandler{
		"ECHO": api.CommandFunc(echoCommand),
		"ADD":  api.CommandFunc(addCommand),
		"QUIT": api.CommandFunc(quitCommand),
	}
}

// echoCommand replies with the request body.
func echoCommand(s api.Session, p api.Package) error {
	body, _ := bodyAndParams(p)
	return s.SendString(body)
}

// addCommand replies with the sum of its integer parameters.
func addCommand(s api.Session, p api.Package) error {
	_, params := bodyAndParams(p)
	sum := 0
	for _, v := range params {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s.SendString(fmt.Sprintf("ADD: %q is not an integer", v))
		}
		sum += n
	}
	return s.SendString(strconv.Itoa(sum))
}

func quitCommand(s api.Session, _ api.Package) error {
	_ = s.SendString("BYE")
	s.Close(api.CloseClientClosing)
	return nil
}

func bodyAndParams(p api.Package) (string, []string) {
	switch pkg := p.(type) {
	case *api.StringPackage:
		return pkg.Body, pkg.Parameters
	case *websocket.Message:
		return pkg.Text, pkg.Parameters
	case *protocol.UDPRequest:
		return string(pkg.Body), strings.Fields(string(pkg.Body))
	}
	return "", nil
}
