package filters

import (
	"errors"

	"github.com/wudi/pdfcore/ir/raw"
)

// applyPredictor undoes the /Predictor transform named by DecodeParms.
// Cross-reference streams are almost always Flate + PNG Up predictor.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	predictor := params.IntFor("Predictor")
	if predictor <= 1 {
		return data, nil
	}
	colors := int(params.IntFor("Colors"))
	if colors == 0 {
		colors = 1
	}
	bpc := int(params.IntFor("BitsPerComponent"))
	if bpc == 0 {
		bpc = 8
	}
	columns := int(params.IntFor("Columns"))
	if columns == 0 {
		columns = 1
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8

	if predictor == 2 {
		return applyTIFFPredictor(data, colors, bpc, columns)
	}
	if predictor < 10 || predictor > 15 {
		return nil, errors.New("unsupported predictor")
	}
	return applyPNGPredictor(data, bpp, rowLen)
}

func applyPNGPredictor(data []byte, bpp, rowLen int) ([]byte, error) {
	if rowLen <= 0 {
		return nil, errors.New("bad predictor row length")
	}
	nRows := len(data) / (rowLen + 1)
	out := make([]byte, 0, nRows*rowLen)
	prior := make([]byte, rowLen)
	for r := 0; r+rowLen+1 <= len(data); r += rowLen + 1 {
		ft := data[r]
		row := append([]byte(nil), data[r+1:r+1+rowLen]...)
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				row[i] += prior[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = row[i-bpp]
				}
				row[i] += byte((int(left) + int(prior[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = row[i-bpp]
					upLeft = prior[i-bpp]
				}
				row[i] += paeth(left, prior[i], upLeft)
			}
		default:
			return nil, errors.New("bad PNG predictor filter type")
		}
		out = append(out, row...)
		copy(prior, row)
	}
	return out, nil
}

func applyTIFFPredictor(data []byte, colors, bpc, columns int) ([]byte, error) {
	if bpc != 8 {
		return nil, errors.New("TIFF predictor: only 8 bits per component supported")
	}
	rowLen := colors * columns
	if rowLen <= 0 {
		return nil, errors.New("bad predictor row length")
	}
	out := append([]byte(nil), data...)
	for r := 0; r+rowLen <= len(out); r += rowLen {
		for i := colors; i < rowLen; i++ {
			out[r+i] += out[r+i-colors]
		}
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
