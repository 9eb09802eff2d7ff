package extract

import (
	"context"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfcpumodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfcpuRepairer rewrites a damaged document through pdfcpu's relaxed
// parser, which tolerates broken xref tables and mislabelled streams.
type pdfcpuRepairer struct{}

func (pdfcpuRepairer) Repair(ctx context.Context, src, dst string) error {
	_ = ctx
	conf := pdfcpumodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfcpumodel.ValidationRelaxed
	return api.OptimizeFile(src, dst, conf)
}

type pdfcpuImagePuller struct{}

func (pdfcpuImagePuller) Pull(ctx context.Context, path string, emit func(PulledImage) error) error {
	_ = ctx
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	conf := pdfcpumodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfcpumodel.ValidationRelaxed
	return api.ExtractImages(f, nil, func(img pdfcpumodel.Image, singleImgPerPage bool, maxPageDigits int) error {
		return emit(PulledImage{
			Page:     img.PageNr,
			ObjNr:    img.ObjNr,
			FileType: img.FileType,
			Reader:   img.Reader,
		})
	}, conf)
}
