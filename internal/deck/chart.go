package deck

import "encoding/json"

// ChartType is the declared chart kind.
type ChartType string

const (
	ChartBar     ChartType = "bar"
	ChartPie     ChartType = "pie"
	ChartLine    ChartType = "line"
	ChartArea    ChartType = "area"
	ChartRadar   ChartType = "radar"
	ChartScatter ChartType = "scatter"
)

// Chart is a typed list of data points. All points share the shape implied by Type.
type Chart struct {
	Type   ChartType    `json:"type"`
	Points []ChartPoint `json:"points"`
}

// ChartPoint is either {label,value} or {x,y}. XY selects the shape.
type ChartPoint struct {
	Label string
	Value float64
	X     float64
	Y     float64
	XY    bool
}

type labelPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type xyPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p ChartPoint) MarshalJSON() ([]byte, error) {
	if p.XY {
		return json.Marshal(xyPoint{X: p.X, Y: p.Y})
	}
	return json.Marshal(labelPoint{Label: p.Label, Value: p.Value})
}

func (p *ChartPoint) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := raw["x"]; ok {
		var xy xyPoint
		if err := json.Unmarshal(data, &xy); err != nil {
			return err
		}
		*p = ChartPoint{X: xy.X, Y: xy.Y, XY: true}
		return nil
	}
	var lv labelPoint
	if err := json.Unmarshal(data, &lv); err != nil {
		return err
	}
	*p = ChartPoint{Label: lv.Label, Value: lv.Value}
	return nil
}
