package modular

// Predictor selects how a sample is predicted from its decoded neighbours.
type Predictor int

const (
	PredictZero Predictor = iota
	PredictWest
	PredictNorth
	PredictAverageWN
	PredictSelect
	PredictGradient
	PredictWeighted
	PredictNorthEast
	PredictNorthWest
	PredictWestWest
	PredictAverageWNW
	PredictAverageNNW
	PredictAverageNNE
	PredictAverageAll

	// NumPredictors is the number of defined predictors.
	NumPredictors = 14
)

var predictorNames = [NumPredictors]string{
	"Zero", "West", "North", "AverageWN", "Select", "Gradient", "Weighted",
	"NorthEast", "NorthWest", "WestWest", "AverageWNW", "AverageNNW", "AverageNNE", "AverageAll",
}

// String returns the string representation of a predictor.
func (p Predictor) String() string {
	if p >= 0 && p < NumPredictors {
		return predictorNames[p]
	}
	return "Predictor(?)"
}

// neighbours holds the causal neighbourhood of a sample. Missing neighbours
// are replaced by their nearest available substitute.
type neighbours struct {
	w, n, nw, ne, nn, nee, ww int64
}

// load fills nb for position (x, y) of ch.
func (nb *neighbours) load(ch *Channel, x, y int) {
	row := ch.Buf[y*ch.Width:]
	var up, up2 []int32
	if y > 0 {
		up = ch.Buf[(y-1)*ch.Width:]
	}
	if y > 1 {
		up2 = ch.Buf[(y-2)*ch.Width:]
	}

	switch {
	case x > 0:
		nb.w = int64(row[x-1])
	case y > 0:
		nb.w = int64(up[x])
	default:
		nb.w = 0
	}
	if y > 0 {
		nb.n = int64(up[x])
	} else {
		nb.n = nb.w
	}
	if x > 0 && y > 0 {
		nb.nw = int64(up[x-1])
	} else {
		nb.nw = nb.w
	}
	if x+1 < ch.Width && y > 0 {
		nb.ne = int64(up[x+1])
	} else {
		nb.ne = nb.n
	}
	if y > 1 {
		nb.nn = int64(up2[x])
	} else {
		nb.nn = nb.n
	}
	if x+2 < ch.Width && y > 0 {
		nb.nee = int64(up[x+2])
	} else {
		nb.nee = nb.ne
	}
	if x > 1 {
		nb.ww = int64(row[x-2])
	} else {
		nb.ww = nb.w
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// clampedGradient predicts w+n-nw clamped to the range of w and n.
func clampedGradient(w, n, nw int64) int64 {
	lo, hi := min(w, n), max(w, n)
	switch {
	case nw < lo:
		return hi
	case nw > hi:
		return lo
	default:
		return w + n - nw
	}
}

// predict returns the prediction of p. wp is the weighted predictor output
// and is used only by PredictWeighted.
func (nb *neighbours) predict(p Predictor, wp int64) int64 {
	switch p {
	case PredictZero:
		return 0
	case PredictWest:
		return nb.w
	case PredictNorth:
		return nb.n
	case PredictAverageWN:
		return (nb.w + nb.n) / 2
	case PredictSelect:
		g := nb.n + nb.w - nb.nw
		if abs64(g-nb.n) < abs64(g-nb.w) {
			return nb.w
		}
		return nb.n
	case PredictGradient:
		return clampedGradient(nb.w, nb.n, nb.nw)
	case PredictWeighted:
		return wp
	case PredictNorthEast:
		return nb.ne
	case PredictNorthWest:
		return nb.nw
	case PredictWestWest:
		return nb.ww
	case PredictAverageWNW:
		return (nb.w + nb.nw) / 2
	case PredictAverageNNW:
		return (nb.n + nb.nw) / 2
	case PredictAverageNNE:
		return (nb.n + nb.ne) / 2
	case PredictAverageAll:
		return (6*nb.n - 2*nb.nn + 7*nb.w + nb.ww + nb.nee + 3*nb.ne + 8) / 16
	}
	return 0
}
