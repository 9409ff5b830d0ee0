// Command client is an interactive shell over an embedded minirel
// database: statements end with ';', results print as aligned tables.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/chzyer/readline"

	minirel "github.com/tamnm/minirel"
	"github.com/tamnm/minirel/internal"
	"github.com/tamnm/minirel/internal/sql/executor"
	"github.com/tamnm/minirel/internal/status"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	dir := flag.String("dir", "", "database directory (overrides config)")
	flag.Parse()

	cfg := internal.DefaultConfig()
	if *configPath != "" {
		loaded, err := internal.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *dir != "" {
		cfg.Storage.Dir = *dir
	}
	setupLogging(cfg.Log.Level)

	db, err := minirel.Open(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open database:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repl(executor.New(db)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func repl(exec *executor.Executor) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "minirel> ",
		HistoryFile:     historyPath(),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt("minirel> ")
			continue
		}
		if err != nil { // io.EOF on ctrl-d
			return nil
		}

		buf.WriteString(line)
		buf.WriteString(" ")
		if !strings.Contains(line, ";") {
			rl.SetPrompt("      -> ")
			continue
		}
		rl.SetPrompt("minirel> ")

		stmt := strings.TrimSpace(buf.String())
		buf.Reset()
		if stmt == "" || stmt == ";" {
			continue
		}

		res, err := exec.ExecSQL(stmt)
		if err != nil {
			fmt.Printf("%s: %v\n", status.Of(err), err)
			continue
		}
		render(res)
		if res.Exit {
			return nil
		}
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.minirel_history"
}

// render prints a result as an aligned text table, or the short form for
// DML and control statements.
func render(res *executor.Result) {
	if res.Message != "" {
		fmt.Println(res.Message)
		return
	}
	if len(res.Columns) == 0 {
		if res.Affected > 0 {
			fmt.Printf("%s. %d rows affected\n", status.Success, res.Affected)
		} else {
			fmt.Println(status.Success)
		}
		return
	}

	widths := make([]int, len(res.Columns))
	for i, col := range res.Columns {
		widths[i] = len(col)
	}
	formatted := make([][]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		line := make([]string, len(row))
		for i, v := range row {
			line[i] = v.Format()
			if len(line[i]) > widths[i] {
				widths[i] = len(line[i])
			}
		}
		formatted = append(formatted, line)
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		fmt.Println("| " + strings.Join(parts, " | ") + " |")
	}
	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w)
	}

	printRow(res.Columns)
	fmt.Println("+-" + strings.Join(rule, "-+-") + "-+")
	for _, line := range formatted {
		printRow(line)
	}
	fmt.Printf("%d rows\n", len(formatted))
}
