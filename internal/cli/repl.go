package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isUnlocked() bool
	checkIdle(ctx context.Context)

	Unlock(ctx context.Context) error
	Lock(ctx context.Context) error
	Save(ctx context.Context) error
	Info(ctx context.Context) error
	Generate(ctx context.Context) error
	Passwd(ctx context.Context) error

	List(ctx context.Context, args []string) error
	Cd(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Find(ctx context.Context, args []string) error
	Add(ctx context.Context, args []string) error
	Mkdir(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Remove(ctx context.Context, args []string) error
	Move(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
	Restore(ctx context.Context, args []string) error
	Forget(ctx context.Context, args []string) error
	Attach(ctx context.Context, args []string) error
	Detach(ctx context.Context, args []string) error
	Import(ctx context.Context, args []string) error
}

const (
	helpLocked   = "Available commands: unlock, gen, exit"
	helpUnlocked = "Available commands: (l)s, cd, show, find, add, mkdir, edit, rm, mv, history, restore, forget, attach, detach, import, gen, passwd, info, save, lock, exit"
)

// runREPL starts a simple read–eval–print loop for the gophsafe shell.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a' with the remaining tokens as arguments.
// Unknown commands are reported back to the user. The loop exits on EOF or
// when the user types "exit" or "quit".
//
// Commands that need an unlocked database are refused while locked. Handler
// errors are printed and the loop carries on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("gs %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]
		a.checkIdle(ctx)

		switch cmd {
		case "help":
			if a.isUnlocked() {
				printlnFn(helpUnlocked)
			} else {
				printlnFn(helpLocked)
			}
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		case "unlock":
			report(a.Unlock(ctx))
			continue
		case "gen":
			report(a.Generate(ctx))
			continue
		}

		if !a.isUnlocked() {
			if _, known := unlockedCommands[cmd]; known {
				printlnFn("Database is locked, type 'unlock' first")
			} else {
				printlnFn("Unknown command:", cmd)
			}
			continue
		}

		if run, ok := unlockedCommands[cmd]; ok {
			report(run(a, ctx, args))
		} else {
			printlnFn("Unknown command:", cmd)
		}
	}
}

type command func(a execIface, ctx context.Context, args []string) error

func noArgs(fn func(execIface, context.Context) error) command {
	return func(a execIface, ctx context.Context, _ []string) error { return fn(a, ctx) }
}

var unlockedCommands = map[string]command{
	"l":       execIface.List,
	"ls":      execIface.List,
	"cd":      execIface.Cd,
	"show":    execIface.Show,
	"find":    execIface.Find,
	"add":     execIface.Add,
	"mkdir":   execIface.Mkdir,
	"edit":    execIface.Edit,
	"rm":      execIface.Remove,
	"mv":      execIface.Move,
	"history": execIface.History,
	"restore": execIface.Restore,
	"forget":  execIface.Forget,
	"attach":  execIface.Attach,
	"detach":  execIface.Detach,
	"import":  execIface.Import,
	"info":    noArgs(execIface.Info),
	"passwd":  noArgs(execIface.Passwd),
	"save":    noArgs(execIface.Save),
	"lock":    noArgs(execIface.Lock),
}

func report(err error) {
	if err != nil {
		printlnFn("error:", err)
	}
}
