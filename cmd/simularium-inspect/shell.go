package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/simularium/simularium-viewer-sub001/internal/stream"
	"github.com/simularium/simularium-viewer-sub001/internal/trajfile"
)

const shellHelp = `commands:
  info                 trajectory metadata
  open <file>          switch to another trajectory file
  load <from> [to]     parse frames [from, to] into the cache in the background
  frame <n>            move to cached frame number n
  time <t>             move to the cached frame at time t
  next                 advance to the next cached frame
  current [-a]         show the current frame (-a lists agents)
  wait <n>             drop incoming frames until frame n arrives
  cache                session statistics
  clear                clear the cache
  exit                 quit`

// ShellCmd 交互式会话
type ShellCmd struct {
	File string `arg:"" type:"existingfile" help:"Trajectory file."`
}

// shell 持有一个会话和当前打开的文件
type shell struct {
	out     io.Writer
	session *stream.Session
	file    *trajfile.File
}

func (c *ShellCmd) Run(env *Env) error {
	sh := &shell{
		out:     env.Out,
		session: stream.NewSession(stream.DefaultOptions()),
	}
	defer sh.close()

	if err := sh.open(c.File); err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "%s: %d frames. Type 'help' for commands.\n", sh.file.Name(), sh.file.NumFrames())

	scanner := bufio.NewScanner(env.In)
	for {
		fmt.Fprint(env.Out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(env.Out)
			return scanner.Err()
		}

		args, err := shellquote.Split(scanner.Text())
		if err != nil {
			fmt.Fprintln(env.Out, "parse error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}
		if err := sh.exec(args); err != nil {
			fmt.Fprintln(env.Out, "error:", err)
		}
	}
}

func (sh *shell) open(path string) error {
	f, err := trajfile.Open(path)
	if err != nil {
		return err
	}
	// 切换后旧文件不再被会话引用
	sh.session.SwitchTrajectory(filepath.Base(path), f)
	if sh.file != nil {
		sh.file.Close()
	}
	sh.file = f
	return nil
}

func (sh *shell) close() {
	sh.session.Close()
	if sh.file != nil {
		sh.file.Close()
	}
}

func (sh *shell) exec(args []string) error {
	switch args[0] {
	case "help":
		fmt.Fprintln(sh.out, shellHelp)

	case "info":
		printInfo(sh.out, sh.file)

	case "open":
		if len(args) != 2 {
			return fmt.Errorf("usage: open <file>")
		}
		if err := sh.open(args[1]); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%s: %d frames\n", sh.file.Name(), sh.file.NumFrames())

	case "load":
		from, to, err := frameRange(args[1:], sh.file.NumFrames())
		if err != nil {
			return err
		}
		for i := from; i <= to; i++ {
			if err := sh.session.RequestFrame(i); err != nil {
				return err
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sh.session.WaitIdle(ctx); err != nil {
			return err
		}
		st := sh.session.Stats()
		fmt.Fprintf(sh.out, "requested %d frames, cache holds %d (%d bytes)\n", to-from+1, st.Cache.NumFrames, st.Cache.Size)

	case "frame":
		n, err := intArg(args, "frame <n>")
		if err != nil {
			return err
		}
		if !sh.session.GotoFrameNumber(n) {
			return fmt.Errorf("frame %d is not cached", n)
		}
		return sh.printCurrent(false)

	case "time":
		if len(args) != 2 {
			return fmt.Errorf("usage: time <t>")
		}
		t, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return err
		}
		if !sh.session.GotoTime(t) {
			return fmt.Errorf("no cached frame at time %g", t)
		}
		return sh.printCurrent(false)

	case "next":
		if !sh.session.GotoNextFrame() {
			fmt.Fprintln(sh.out, "at last cached frame")
			return nil
		}
		return sh.printCurrent(false)

	case "current":
		return sh.printCurrent(len(args) > 1 && args[1] == "-a")

	case "wait":
		n, err := intArg(args, "wait <n>")
		if err != nil {
			return err
		}
		sh.session.WaitForFrame(n)

	case "cache":
		enc := json.NewEncoder(sh.out)
		enc.SetIndent("", "  ")
		return enc.Encode(sh.session.Stats())

	case "clear":
		sh.session.ClearCache()

	default:
		return fmt.Errorf("unknown command %q, try 'help'", args[0])
	}
	return nil
}

func (sh *shell) printCurrent(agents bool) error {
	data := sh.session.CurrentFrameData()
	if data == nil {
		return fmt.Errorf("cache is empty")
	}
	return printFrame(sh.out, data, agents)
}

func intArg(args []string, usage string) (int, error) {
	if len(args) != 2 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	return strconv.Atoi(args[1])
}

// frameRange 解析 "<from> [to]", to 缺省为 from, 超出范围时截断到最后一帧
func frameRange(args []string, numFrames int) (int, int, error) {
	if len(args) < 1 || len(args) > 2 {
		return 0, 0, fmt.Errorf("usage: load <from> [to]")
	}
	from, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, err
	}
	to := from
	if len(args) == 2 {
		if to, err = strconv.Atoi(args[1]); err != nil {
			return 0, 0, err
		}
	}
	if to >= numFrames {
		to = numFrames - 1
	}
	if from < 0 || from > to {
		return 0, 0, fmt.Errorf("invalid frame range [%d, %d] for %d frames", from, to, numFrames)
	}
	return from, to, nil
}
