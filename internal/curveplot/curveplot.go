// Package curveplot renders planner curves and recorded runs to images with
// gonum/plot, for offline inspection of a drive.
package curveplot

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/pathplanner/internal/curvefit"
	"github.com/banshee-data/pathplanner/internal/db"
	"github.com/banshee-data/pathplanner/internal/pathplan"
)

// Default image size, matching a wide strip chart.
const (
	Width  = 14 * vg.Inch
	Height = 6 * vg.Inch
)

// LookaheadDist is where the history plot samples the trajectory besides
// at the vehicle, m.
const LookaheadDist = 20.0

var errNoOutputs = errors.New("curveplot: no outputs to plot")

var (
	colorLeft       = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorRight      = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorPath       = color.RGBA{R: 127, G: 127, B: 127, A: 255}
	colorCenter     = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	colorTrajectory = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

func polyXYs(p curvefit.Poly) plotter.XYs {
	pts := make(plotter.XYs, curvefit.NumPoints)
	for i := range pts {
		x := float64(i)
		pts[i] = plotter.XY{X: x, Y: p.Eval(x)}
	}
	return pts
}

func addLine(p *plot.Plot, name string, pts plotter.XYs, c color.Color, dashed bool) error {
	l, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	l.Color = c
	l.Width = vg.Points(1.5)
	if dashed {
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	}
	p.Add(l)
	p.Legend.Add(name, l)
	return nil
}

// Curves plots the inputs and outputs of one planner cycle over the sampled
// distance range.
func Curves(st pathplan.State, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "distance (m)"
	p.Y.Label.Text = "lateral offset (m)"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	series := []struct {
		name   string
		poly   curvefit.Poly
		color  color.Color
		dashed bool
	}{
		{"left lane", st.Left, colorLeft, true},
		{"right lane", st.Right, colorRight, true},
		{"model path", st.Path, colorPath, true},
		{"lane center", st.Fusion.CenterLane, colorCenter, false},
		{"trajectory", st.Trajectory, colorTrajectory, false},
	}
	for _, s := range series {
		if err := addLine(p, s.name, polyXYs(s.poly), s.color, s.dashed); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// History plots the trajectory offset at the vehicle and at LookaheadDist
// over a recorded run. Cycles where the output was dead are marked on the
// zero line.
func History(outs []db.Output, title string) (*plot.Plot, error) {
	if len(outs) == 0 {
		return nil, errNoOutputs
	}

	near := make(plotter.XYs, len(outs))
	far := make(plotter.XYs, len(outs))
	var dead plotter.XYs
	for i, o := range outs {
		near[i] = plotter.XY{X: o.CurTime, Y: o.Trajectory.Eval(0)}
		far[i] = plotter.XY{X: o.CurTime, Y: o.Trajectory.Eval(LookaheadDist)}
		if o.Dead {
			dead = append(dead, plotter.XY{X: o.CurTime, Y: 0})
		}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "lateral offset (m)"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	if err := addLine(p, "offset at 0 m", near, colorTrajectory, false); err != nil {
		return nil, err
	}
	if err := addLine(p, fmt.Sprintf("offset at %.0f m", LookaheadDist), far, colorCenter, false); err != nil {
		return nil, err
	}
	if len(dead) > 0 {
		s, err := plotter.NewScatter(dead)
		if err != nil {
			return nil, fmt.Errorf("dead markers: %w", err)
		}
		s.GlyphStyle.Shape = draw.CrossGlyph{}
		s.GlyphStyle.Color = color.Black
		p.Add(s)
		p.Legend.Add("dead", s)
	}
	return p, nil
}

// WritePNG encodes p as a PNG of the default size.
func WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG writes p to path as a PNG of the default size.
func SavePNG(p *plot.Plot, path string) error {
	return p.Save(Width, Height, path)
}
