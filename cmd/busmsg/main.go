// Command busmsg inspects bus wire type signatures and decodes
// encoded message bodies.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/kr/pretty"
	"github.com/mvantis/busmsg"
)

var dumpArgs struct {
	Sig string `flag:"sig,Type signature of the encoded body"`
}

func main() {
	root := &command.C{
		Name:  "busmsg",
		Usage: "command args...",
		Commands: []*command.C{
			{
				Name:  "sig",
				Usage: "sig <signature>",
				Help:  "Parse a type signature and print the Go shape it maps to.",
				Run:   command.Adapt(runSig),
			},
			{
				Name:     "dump",
				Usage:    "dump -sig <signature> <hex-body>",
				Help:     "Decode a hex-encoded message body and pretty-print its values.",
				SetFlags: command.Flags(flax.MustBind, &dumpArgs),
				Run:      command.Adapt(runDump),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}
	env := root.NewEnv(nil)
	command.RunOrFail(env, os.Args[1:])
}

func runSig(env *command.Env, sigStr string) error {
	parts, err := busmsg.SplitSignature(sigStr)
	if err != nil {
		return err
	}
	for _, p := range parts {
		sig, err := busmsg.ParseSignature(p)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", p, sig.Type())
	}
	return nil
}

func runDump(env *command.Env, hexBody string) error {
	clean := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\t' {
			return -1
		}
		return r
	}, hexBody)
	body, err := hex.DecodeString(clean)
	if err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}

	parts, err := busmsg.SplitSignature(dumpArgs.Sig)
	if err != nil {
		return err
	}
	msg := busmsg.NewIncoming(busmsg.Envelope{
		Type:      busmsg.TypeMethodCall,
		Signature: dumpArgs.Sig,
	}, body)

	for _, p := range parts {
		sig, err := busmsg.ParseSignature(p)
		if err != nil {
			return err
		}
		ptr := reflect.New(sig.Type())
		msg.Decode(ptr.Interface())
		if err := msg.Err(); err != nil {
			return fmt.Errorf("decoding value of type %q: %w", p, err)
		}
		pretty.Println(ptr.Elem().Interface())
	}
	return nil
}
