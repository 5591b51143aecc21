// Command reldb is the REPL/batch-file binary spec.md §6 describes:
// no arguments opens an interactive `> ` prompt, `--file <path>` runs
// every ';'-separated statement in a file then exits. Grounded on the
// teacher's root main.go (chzyer/readline interactive loop + piped
// bufio.Scanner fallback), narrowed to spec.md's simpler "newline
// terminates a REPL statement, ';' terminates a file statement" rule
// instead of the teacher's always-wait-for-';' multi-line buffering.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relcore/relcore/internal/engine"
)

func main() {
	dataDir := flag.String("data", "./reldb_data", "data directory for catalog + heap files")
	filePath := flag.String("file", "", "execute ';'-separated statements from this file, then exit")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	eng, err := engine.Open(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Execution error: %v\n", err)
		os.Exit(1)
	}
	sess := engine.NewSession(eng)

	if *filePath != "" {
		runFile(sess, *filePath)
		return
	}
	runREPL(sess)
}

func runFile(sess *engine.Session, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Execution error: %v\n", err)
		os.Exit(1)
	}
	for _, stmt := range strings.Split(string(data), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if runStatement(sess, stmt) {
			return
		}
	}
}

func runREPL(sess *engine.Session) {
	stdinStat, _ := os.Stdin.Stat()
	isPiped := (stdinStat.Mode() & os.ModeCharDevice) == 0

	if isPiped {
		runPiped(sess)
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: "/tmp/reldb_history.txt",
		EOFPrompt:   "exit",
	})
	if err != nil {
		runPiped(sess)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return
			}
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if runStatement(sess, line) {
			return
		}
	}
}

func runPiped(sess *engine.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if runStatement(sess, line) {
			return
		}
	}
}

// runStatement parses and executes one statement, printing its
// result or a one-line error per spec.md §7's "one line per error on
// the error stream; returns to prompt; continues". Returns true when
// the statement was EXIT (or its execution should end the session).
func runStatement(sess *engine.Session, line string) bool {
	exit, err := Execute(sess, line, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return exit
}
