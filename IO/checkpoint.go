package IO

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/mdjhnsn/scrn/params"
	"github.com/mdjhnsn/scrn/scrn"
)

// matrixData is the gob-friendly form of a dense matrix.
type matrixData struct {
	Data []float64
	R, C int
}

// checkpointData holds everything needed to rebuild a network: the
// configuration plus every parameter matrix in scrn.ParamList order.
type checkpointData struct {
	Cfg      params.Config
	Matrices []matrixData
}

func packMatrix(m *mat.Dense) matrixData {
	r, c := m.Dims()
	raw := mat.DenseCopyOf(m).RawMatrix()
	data := make([]float64, len(raw.Data))
	copy(data, raw.Data)
	return matrixData{Data: data, R: r, C: c}
}

// SaveCheckpoint persists a network to disk using gob. The file is
// written to a temporary path first and renamed into place so a crash
// mid-write never clobbers the previous checkpoint.
func SaveCheckpoint(net *scrn.Network, filename string) error {
	if net == nil {
		return fmt.Errorf("save checkpoint: nil network")
	}
	data := checkpointData{Cfg: net.Cfg}
	for _, p := range net.ParamList() {
		data.Matrices = append(data.Matrices, packMatrix(p))
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	if dir := filepath.Dir(filename); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint and
// rebuilds the network. The stored configuration is validated before
// any matrices are touched, and every matrix must match the shape the
// configuration implies.
func LoadCheckpoint(filename string) (*scrn.Network, error) {
	rawBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	dec := gob.NewDecoder(bytes.NewBuffer(rawBytes))
	var data checkpointData
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if err := data.Cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	net, err := scrn.NewNetwork(data.Cfg)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	ps := net.ParamList()
	if len(data.Matrices) != len(ps) {
		return nil, fmt.Errorf("load checkpoint: got %d matrices, want %d", len(data.Matrices), len(ps))
	}
	for i, md := range data.Matrices {
		r, c := ps[i].Dims()
		if md.R != r || md.C != c {
			return nil, fmt.Errorf("load checkpoint: matrix %d is (%dx%d), want (%dx%d)", i, md.R, md.C, r, c)
		}
		if len(md.Data) != r*c {
			return nil, fmt.Errorf("load checkpoint: matrix %d has %d values, want %d", i, len(md.Data), r*c)
		}
		ps[i].Copy(mat.NewDense(md.R, md.C, md.Data))
	}
	return net, nil
}
