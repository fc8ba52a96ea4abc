package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/simularium/simularium-viewer-sub001/internal/codec"
	"github.com/simularium/simularium-viewer-sub001/internal/container"
	"github.com/simularium/simularium-viewer-sub001/internal/trajfile"
)

// InfoCmd 元数据和容器布局
type InfoCmd struct {
	File string `arg:"" type:"existingfile" help:"Trajectory file."`
	JSON bool   `help:"Print metadata as JSON."`
}

func (c *InfoCmd) Run(env *Env) error {
	f, err := trajfile.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	if c.JSON {
		enc := json.NewEncoder(env.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(f.TrajectoryInfo())
	}
	printInfo(env.Out, f)
	return nil
}

func printInfo(w io.Writer, f *trajfile.File) {
	info := f.TrajectoryInfo()
	fmt.Fprintf(w, "file:          %s\n", f.Name())
	fmt.Fprintf(w, "format:        %s\n", f.Format)
	fmt.Fprintf(w, "frames:        %d\n", f.NumFrames())
	fmt.Fprintf(w, "timeStepSize:  %g\n", info.TimeStepSize)
	fmt.Fprintf(w, "totalSteps:    %d\n", info.TotalSteps)
	if info.TrajectoryTitle != "" {
		fmt.Fprintf(w, "title:         %s\n", info.TrajectoryTitle)
	}
	fmt.Fprintf(w, "agent types:   %d\n", len(info.TypeMapping))
	fmt.Fprintf(w, "plot data:     %v\n", f.PlotData() != nil)

	br, ok := f.Reader.(*container.BinaryReader)
	if !ok {
		return
	}
	h := br.Header()
	fmt.Fprintf(w, "version:       %d\n", h.Version)
	fmt.Fprintf(w, "headerLength:  %d\n", h.HeaderLength)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BLOCK\tTYPE\tOFFSET\tSIZE")
	for i, b := range h.Blocks {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", i, b.Type, b.Offset, b.Size)
	}
	tw.Flush()
}

// FrameCmd 解码一帧
type FrameCmd struct {
	File   string `arg:"" type:"existingfile" help:"Trajectory file."`
	Index  int    `arg:"" help:"Frame index."`
	Agents bool   `short:"a" help:"List every agent record."`
}

func (c *FrameCmd) Run(env *Env) error {
	f, err := trajfile.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := f.Frame(c.Index)
	if err != nil {
		return err
	}
	return printFrame(env.Out, data, c.Agents)
}

func printFrame(w io.Writer, data []byte, agents bool) error {
	h, records, err := codec.Decode(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "frame %d  time %g  agents %d  bytes %d\n", h.FrameNumber, h.Time, h.AgentCount, len(data))
	if !agents {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VIS\tID\tTYPE\tX\tY\tZ\tR\tSUBPOINTS")
	for _, a := range records {
		fmt.Fprintf(tw, "%g\t%g\t%g\t%g\t%g\t%g\t%g\t%d\n",
			a.VisType, a.InstanceID, a.TypeID, a.X, a.Y, a.Z, a.CollisionRadius, len(a.Subpoints))
	}
	return tw.Flush()
}

// SeekCmd 时间对应的帧下标
type SeekCmd struct {
	File string  `arg:"" type:"existingfile" help:"Trajectory file."`
	Time float64 `arg:"" help:"Simulation time."`
}

func (c *SeekCmd) Run(env *Env) error {
	f, err := trajfile.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	idx := f.FrameIndexAtTime(c.Time)
	if idx < 0 {
		fmt.Fprintf(env.Out, "no frame at time %g\n", c.Time)
		return nil
	}
	fmt.Fprintf(env.Out, "%d\n", idx)
	return nil
}
