package chess

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io/fs"
	"os"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed assets/pieces/*.svg
var embeddedPieces embed.FS

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

// pieceSet rasterises piece SVGs on demand and caches them per size.
type pieceSet struct {
	custom fs.FS

	mu    sync.RWMutex
	cache map[pieceCacheKey]image.Image
}

func newPieceSet(dir string) *pieceSet {
	set := &pieceSet{cache: map[pieceCacheKey]image.Image{}}
	if dir != "" {
		set.custom = os.DirFS(dir)
	}
	return set
}

func (p *pieceSet) image(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}
	p.mu.RLock()
	img, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		return img, nil
	}

	data, err := p.read(pieceAssetName(piece))
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", pieceAssetName(piece), err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	p.mu.Lock()
	p.cache[key] = rgba
	p.mu.Unlock()
	return rgba, nil
}

func (p *pieceSet) read(name string) ([]byte, error) {
	if p.custom != nil {
		if data, err := fs.ReadFile(p.custom, name); err == nil {
			return data, nil
		}
	}
	data, err := embeddedPieces.ReadFile("assets/pieces/" + name)
	if err != nil {
		return nil, fmt.Errorf("read piece asset %s: %w", name, err)
	}
	return data, nil
}

func pieceAssetName(piece nchess.Piece) string {
	prefix := "b"
	if piece.Color() == nchess.White {
		prefix = "w"
	}
	return prefix + pieceLetter(piece.Type()) + ".svg"
}

// sanitizeSVG fixes style declarations oksvg refuses, as found in
// hand-exported piece sets.
func sanitizeSVG(svg []byte) []byte {
	fixed := bytes.ReplaceAll(svg, []byte("fill:000000"), []byte("fill:#000000"))
	fixed = bytes.ReplaceAll(fixed, []byte("fill: 000000"), []byte("fill:#000000"))
	fixed = bytes.ReplaceAll(fixed, []byte("stroke: 000000"), []byte("stroke:#000000"))
	fixed = bytes.ReplaceAll(fixed, []byte("fill: #"), []byte("fill:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("stroke: #"), []byte("stroke:#"))
	return fixed
}
