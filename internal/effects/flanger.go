package effects

var flangerArgOrder = []string{
	"delay",
	"depth",
	"regen",
	"width",
	"speed",
	"shape",
	"phase",
	"interp",
}

// Flanger renders "flanger [delay depth regen width speed shape phase interp]".
// All fields are optional but positional.
type Flanger struct {
	Delay  string
	Depth  string
	Regen  string
	Width  string
	Speed  string
	Shape  string
	Phase  string
	Interp string
}

// Name returns "flanger".
func (Flanger) Name() string {
	return "flanger"
}

// Options renders the positional arguments that are set.
func (f Flanger) Options() ([]string, error) {
	var l OptList
	err := l.AddOrdered(flangerArgOrder,
		f.Delay,
		f.Depth,
		f.Regen,
		f.Width,
		f.Speed,
		f.Shape,
		f.Phase,
		f.Interp,
	)
	if err != nil {
		return nil, err
	}
	return l.Strings(), nil
}
