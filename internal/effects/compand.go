package effects

import (
	"errors"
	"sort"
)

var (
	// ErrNoAttackDecay is returned when a compand has no attack/decay pair.
	ErrNoAttackDecay = errors.New("must specify at least one attack/decay pair")

	// ErrNoTransferFunction is returned when a compand has no transfer point.
	ErrNoTransferFunction = errors.New("must specify at least a single in-dB transfer point")
)

// TransferPoint is one point of the compand transfer function. Out is
// optional.
type TransferPoint struct {
	InDB   float32
	OutDB  float32
	HasOut bool
}

func (p TransferPoint) String() string {
	if p.HasOut {
		return FormatFloat(p.InDB) + "," + FormatFloat(p.OutDB)
	}
	return FormatFloat(p.InDB)
}

// Compand renders
//
//	compand attack1,decay1{,attack2,decay2} [soft-knee-dB:]in-dB1[,out-dB1]{,in-dB2,out-dB2} [gain [initial-volume-dB [delay]]]
//
// Transfer points are sorted by input level before rendering.
type Compand struct {
	attackDecay []string
	transfer    []TransferPoint
	softKneeDB  *float32
	gainDB      *float32
	initialDB   *float32
	delaySecs   *float32
}

// NewCompand returns an empty compand.
func NewCompand() *Compand {
	return &Compand{}
}

// AttackDecay adds an attack/decay pair in seconds.
func (c *Compand) AttackDecay(attack, decay float32) *Compand {
	c.attackDecay = append(c.attackDecay, FormatFloat(attack), FormatFloat(decay))
	return c
}

// Transfer adds a transfer point with only an input level.
func (c *Compand) Transfer(inDB float32) *Compand {
	c.transfer = append(c.transfer, TransferPoint{InDB: inDB})
	return c
}

// TransferTo adds a transfer point mapping inDB to outDB.
func (c *Compand) TransferTo(inDB, outDB float32) *Compand {
	c.transfer = append(c.transfer, TransferPoint{InDB: inDB, OutDB: outDB, HasOut: true})
	return c
}

// SoftKnee sets the soft-knee width in dB.
func (c *Compand) SoftKnee(db float32) *Compand {
	c.softKneeDB = &db
	return c
}

// Gain sets the post-processing gain in dB.
func (c *Compand) Gain(db float32) *Compand {
	c.gainDB = &db
	return c
}

// InitialVolume sets the initial volume in dB. Requires Gain.
func (c *Compand) InitialVolume(db float32) *Compand {
	c.initialDB = &db
	return c
}

// Delay sets the look-ahead delay in seconds. Requires InitialVolume.
func (c *Compand) Delay(seconds float32) *Compand {
	c.delaySecs = &seconds
	return c
}

// Name returns "compand".
func (*Compand) Name() string {
	return "compand"
}

// Options renders the compand arguments.
func (c *Compand) Options() ([]string, error) {
	if len(c.attackDecay) == 0 {
		return nil, ErrNoAttackDecay
	}
	if len(c.transfer) == 0 {
		return nil, ErrNoTransferFunction
	}

	var l OptList
	l.AddList(c.attackDecay)

	points := make([]TransferPoint, len(c.transfer))
	copy(points, c.transfer)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].InDB < points[j].InDB
	})

	transfer := make([]string, 0, len(points))
	for i, p := range points {
		s := p.String()
		if i == 0 && c.softKneeDB != nil {
			s = FormatFloat(*c.softKneeDB) + ":" + s
		}
		transfer = append(transfer, s)
	}
	l.AddList(transfer)

	err := l.AddOrdered(
		[]string{"gain", "initial-volume-dB", "delay"},
		formatOptional(c.gainDB),
		formatOptional(c.initialDB),
		formatOptional(c.delaySecs),
	)
	if err != nil {
		return nil, err
	}
	return l.Strings(), nil
}
