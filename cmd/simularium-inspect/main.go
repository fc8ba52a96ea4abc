// simularium-inspect 查看 .simularium 轨迹文件
package main

import (
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/simularium/simularium-viewer-sub001/internal/logging"
)

// Env 命令的输入输出
type Env struct {
	In  io.Reader
	Out io.Writer
}

// CLI 命令行定义
type CLI struct {
	Debug bool `help:"Enable debug logging."`

	Info  InfoCmd  `cmd:"" help:"Print trajectory metadata and container layout."`
	Frame FrameCmd `cmd:"" help:"Decode one frame."`
	Seek  SeekCmd  `cmd:"" help:"Find the frame index at a simulation time."`
	Shell ShellCmd `cmd:"" help:"Interactive playback session over a trajectory file."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("simularium-inspect"),
		kong.Description("Inspect simularium trajectory files."),
		kong.UsageOnError(),
	)
	if cli.Debug {
		logging.SetDebugMode(true)
	}
	logging.SetOutput(os.Stderr)

	err := ctx.Run(&Env{In: os.Stdin, Out: os.Stdout})
	ctx.FatalIfErrorf(err)
}
