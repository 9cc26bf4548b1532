package chess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MoveHighlight marks the last move. White moves tint both squares, Black
// moves are drawn as an arrow.
type MoveHighlight struct {
	From  nchess.Square
	To    nchess.Square
	Mover nchess.Color
}

type RenderOptions struct {
	Highlight *MoveHighlight
	Material  MaterialScore
	HUDHeader string
	HUDTurn   string
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, board *nchess.Board, opts RenderOptions) ([]byte, error)
}

type RendererOption func(*pngBoardRenderer)

// WithPieceDir loads piece SVGs named wK.svg..bP.svg from dir. Missing files
// fall back to the built-in set.
func WithPieceDir(dir string) RendererOption {
	return func(r *pngBoardRenderer) {
		if strings.TrimSpace(dir) != "" {
			r.pieces = newPieceSet(dir)
		}
	}
}

func WithSquareSize(px int) RendererOption {
	return func(r *pngBoardRenderer) {
		if px >= 16 {
			r.squareSize = px
		}
	}
}

type pngBoardRenderer struct {
	squareSize int
	pieces     *pieceSet
}

func NewBoardRenderer(options ...RendererOption) BoardRenderer {
	r := &pngBoardRenderer{squareSize: 64}
	for _, opt := range options {
		opt(r)
	}
	if r.pieces == nil {
		r.pieces = newPieceSet("")
	}
	return r
}

var (
	backgroundColor     = color.RGBA{R: 24, G: 26, B: 38, A: 255}
	lightSquare         = color.RGBA{R: 233, G: 207, B: 163, A: 255}
	darkSquare          = color.RGBA{R: 187, G: 136, B: 96, A: 255}
	whiteMoveFill       = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveArrow      = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	hudPanelColor       = color.NRGBA{R: 40, G: 44, B: 64, A: 250}
	hudTurnPanelColor   = color.NRGBA{R: 48, G: 52, B: 74, A: 245}
	hudShadowColor      = color.NRGBA{A: 60}
	hudTextPrimary      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTextSecondary    = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	boardShadowColor    = color.NRGBA{A: 70}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

const (
	sideMargin  = 28
	topMargin   = 96
	panelHeight = 26
	panelGap    = 8
	panelRadius = 8
	panelPadX   = 14
	shadowDrop  = 4
)

func (r *pngBoardRenderer) RenderPNG(ctx context.Context, board *nchess.Board, opts RenderOptions) ([]byte, error) {
	if board == nil {
		return nil, errors.New("board is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sq := r.squareSize
	boardSize := sq * 8
	origin := image.Pt(sideMargin, topMargin)
	boardRect := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(boardSize, boardSize))}

	c := newCanvas(boardSize+sideMargin*2, boardSize+topMargin+sideMargin)
	imagedraw.Draw(c.img, c.img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	c.roundRect(boardRect.Add(image.Pt(shadowDrop, shadowDrop*2)), 0, boardShadowColor)
	c.drawHUD(opts, boardRect)
	drawSquares(c.img, sq, origin)
	if opts.Highlight != nil && opts.Highlight.Mover == nchess.White {
		overlaySquare(c.img, opts.Highlight.From, sq, origin, whiteMoveFill)
		overlaySquare(c.img, opts.Highlight.To, sq, origin, whiteMoveFill)
	}
	if err := r.drawPieces(c.img, board, sq, origin); err != nil {
		return nil, err
	}
	if opts.Highlight != nil && opts.Highlight.Mover == nchess.Black {
		c.arrow(opts.Highlight.From, opts.Highlight.To, sq, origin, blackMoveArrow)
	}
	drawCoordinates(c.img, sq, origin)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// canvas pairs the target image with a rasterx filler for vector shapes.
type canvas struct {
	img     *image.RGBA
	scanner *rasterx.ScannerGV
	filler  *rasterx.Filler
}

func newCanvas(w, h int) *canvas {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	return &canvas{
		img:     img,
		scanner: scanner,
		filler:  rasterx.NewFiller(w, h, scanner),
	}
}

func (c *canvas) fill(clr color.Color, path func(p rasterx.Adder)) {
	c.filler.Clear()
	c.scanner.SetColor(clr)
	path(c.filler)
	c.filler.Draw()
	c.filler.Clear()
}

func (c *canvas) roundRect(rect image.Rectangle, radius float64, clr color.Color) {
	if rect.Empty() {
		return
	}
	c.fill(clr, func(p rasterx.Adder) {
		if radius <= 0 {
			rasterx.AddRect(float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Max.X), float64(rect.Max.Y), 0, p)
			return
		}
		rasterx.AddRoundRect(
			float64(rect.Min.X), float64(rect.Min.Y),
			float64(rect.Max.X), float64(rect.Max.Y),
			radius, radius, 0, rasterx.RoundGap, p,
		)
	})
}

func (c *canvas) polygon(points []pointF, clr color.Color) {
	if len(points) < 3 {
		return
	}
	c.fill(clr, func(p rasterx.Adder) {
		p.Start(rasterx.ToFixedP(points[0].X, points[0].Y))
		for _, pt := range points[1:] {
			p.Line(rasterx.ToFixedP(pt.X, pt.Y))
		}
		p.Stop(true)
	})
}

func (c *canvas) arrow(from, to nchess.Square, squareSize int, origin image.Point, clr color.Color) {
	if from == to {
		return
	}
	start := squareCenter(from, squareSize, origin)
	end := squareCenter(to, squareSize, origin)
	dx, dy := end.X-start.X, end.Y-start.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	ux, uy := dx/length, dy/length
	px, py := -uy, ux

	size := float64(squareSize)
	shaft := size * 0.16
	head := size * 0.34
	headLen := size * 0.4
	if headLen > length*0.6 {
		headLen = length * 0.6
	}
	bx, by := end.X-ux*headLen, end.Y-uy*headLen

	c.polygon([]pointF{
		{start.X + px*shaft/2, start.Y + py*shaft/2},
		{bx + px*shaft/2, by + py*shaft/2},
		{bx + px*head/2, by + py*head/2},
		end,
		{bx - px*head/2, by - py*head/2},
		{bx - px*shaft/2, by - py*shaft/2},
		{start.X - px*shaft/2, start.Y - py*shaft/2},
	}, clr)
}

func (c *canvas) drawHUD(opts RenderOptions, boardRect image.Rectangle) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: c.img, Face: face}

	title := strings.TrimSpace(opts.HUDHeader)
	if title == "" {
		title = "Player vs Stockfish"
	}
	turn := strings.TrimSpace(opts.HUDTurn)
	score := formatMaterialDiff(opts.Material)

	turnBottom := boardRect.Min.Y - panelGap*2
	turnTop := turnBottom - panelHeight
	titleBottom := turnTop - panelGap
	titleTop := titleBottom - panelHeight

	scoreWidth := drawer.MeasureString(score).Round() + panelPadX*2
	scoreRect := image.Rect(boardRect.Max.X-scoreWidth, titleTop, boardRect.Max.X, titleBottom)

	maxTitle := boardRect.Dx() - scoreWidth - panelGap
	title = truncateWithEllipsis(face, title, maxTitle-panelPadX*2)
	titleWidth := drawer.MeasureString(title).Round() + panelPadX*2
	titleRect := image.Rect(boardRect.Min.X, titleTop, boardRect.Min.X+titleWidth, titleBottom)

	for _, rect := range []image.Rectangle{titleRect, scoreRect} {
		c.roundRect(rect.Add(image.Pt(0, shadowDrop)), panelRadius, hudShadowColor)
		c.roundRect(rect, panelRadius, hudPanelColor)
	}
	drawCenteredString(drawer, titleRect, title, hudTextPrimary)
	drawCenteredString(drawer, scoreRect, score, hudTextPrimary)

	if turn == "" {
		return
	}
	turn = truncateWithEllipsis(face, turn, boardRect.Dx()-panelPadX*2)
	turnWidth := drawer.MeasureString(turn).Round() + panelPadX*2
	left := boardRect.Min.X + (boardRect.Dx()-turnWidth)/2
	turnRect := image.Rect(left, turnTop, left+turnWidth, turnBottom)
	c.roundRect(turnRect.Add(image.Pt(0, shadowDrop)), panelRadius, hudShadowColor)
	c.roundRect(turnRect, panelRadius, hudTurnPanelColor)
	drawCenteredString(drawer, turnRect, turn, hudTextSecondary)
}

func drawSquares(dst *image.RGBA, squareSize int, origin image.Point) {
	for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			sq := nchess.NewSquare(file, rank)
			clr := lightSquare
			if (int(file)+int(rank))%2 == 0 {
				clr = darkSquare
			}
			imagedraw.Draw(dst, squareRect(sq, squareSize, origin), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

func (r *pngBoardRenderer) drawPieces(dst *image.RGBA, board *nchess.Board, squareSize int, origin image.Point) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		img, err := r.pieces.image(piece, squareSize)
		if err != nil {
			return err
		}
		rect := squareRect(sq, squareSize, origin)
		imagedraw.Draw(dst, rect, img, image.Point{}, imagedraw.Over)
	}
	return nil
}

func overlaySquare(dst *image.RGBA, sq nchess.Square, squareSize int, origin image.Point, clr color.Color) {
	imagedraw.Draw(dst, squareRect(sq, squareSize, origin), image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawCoordinates(dst *image.RGBA, squareSize int, origin image.Point) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordinateTextColor)}
	ascent := face.Metrics().Ascent.Ceil()
	boardBottom := origin.Y + squareSize*8

	for i := 0; i < 8; i++ {
		rankLabel := string(rune('8' - i))
		centerY := origin.Y + i*squareSize + squareSize/2
		drawCenteredText(drawer, rankLabel, origin.X-sideMargin/2, centerY+ascent/2)

		fileLabel := string(rune('a' + i))
		centerX := origin.X + i*squareSize + squareSize/2
		drawCenteredText(drawer, fileLabel, centerX, boardBottom+(sideMargin+ascent)/2)
	}
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 {
		return trimmed
	}
	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(trimmed).Round() <= maxWidth {
		return trimmed
	}
	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ""
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	if text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawCenteredText(drawer, text, rect.Min.X+rect.Dx()/2, baseline)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func formatMaterialDiff(material MaterialScore) string {
	diff := material.Diff()
	if diff == 0 {
		return "="
	}
	return fmt.Sprintf("%+d", diff)
}

func squareRect(sq nchess.Square, squareSize int, origin image.Point) image.Rectangle {
	x := origin.X + int(sq.File())*squareSize
	y := origin.Y + (7-int(sq.Rank()))*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func squareCenter(sq nchess.Square, squareSize int, origin image.Point) pointF {
	rect := squareRect(sq, squareSize, origin)
	return pointF{
		X: float64(rect.Min.X) + float64(squareSize)/2,
		Y: float64(rect.Min.Y) + float64(squareSize)/2,
	}
}

type pointF struct {
	X float64
	Y float64
}
