package glm

import (
	"errors"
	"fmt"
	"strconv"

	smglm "github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"gonum.org/v1/gonum/mat"
)

// estimate is the result of one estimation path.
type estimate struct {
	params []float64
	scale  float64
	cov    *mat.SymDense // model-based; nil lets Results.finish compute it
	pinv   bool
}

// fitStatmodel estimates a full-rank model with statmodel's IRLS. Columns
// are passed under generated names, so design labels and the weight
// column never clash.
func fitStatmodel(X *mat.Dense, y, w []float64, c *Config) (est *estimate, err error) {
	_, p := X.Dims()
	data := [][]statmodel.Dtype{y}
	names := []string{"y"}
	xnames := make([]string, p)
	for j := range xnames {
		xnames[j] = "x" + strconv.Itoa(j)
		data = append(data, mat.Col(nil, j, X))
		names = append(names, xnames[j])
	}

	sc := smglm.DefaultConfig()
	sc.Family, sc.Link = statmodelFamily(c)
	if c.WeightVar != "" {
		data = append(data, w)
		names = append(names, "w")
		sc.WeightVar = "w"
	}

	// statmodel panics when the working system cannot be solved.
	defer func() {
		if r := recover(); r != nil {
			est, err = nil, fmt.Errorf("irls: %v", r)
		}
	}()

	model, err := smglm.NewGLM(statmodel.NewDataset(data, names), "y", xnames, sc)
	if err != nil {
		return nil, fmt.Errorf("irls: %w", err)
	}
	res := model.Fit()
	vcov := res.VCov()
	if len(vcov) != p*p {
		return nil, errors.New("irls: information matrix is not invertible")
	}
	cov := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			cov.SetSym(i, j, (vcov[i*p+j]+vcov[j*p+i])/2)
		}
	}
	return &estimate{
		params: append([]float64(nil), res.Params()...),
		scale:  res.Scale(),
		cov:    cov,
	}, nil
}

func statmodelFamily(c *Config) (*smglm.Family, *smglm.Link) {
	fam := smglm.NewFamily(smglm.GaussianFamily)
	if c.Family == Binomial {
		fam = smglm.NewFamily(smglm.BinomialFamily)
	}
	link := smglm.NewLink(smglm.IdentityLink)
	if c.link() == LogitLink {
		link = smglm.NewLink(smglm.LogitLink)
	}
	return fam, link
}
