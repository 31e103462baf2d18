package ocr

import (
	"context"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/jhoicas/recaudo-api/internal/application/reconciliation"
	"github.com/jhoicas/recaudo-api/pkg/config"
)

// Límite de Vision API para procesamiento síncrono.
const maxImageBytes = 20 * 1024 * 1024

// Ensure GoogleVision implements reconciliation.TextOCR.
var _ reconciliation.TextOCR = (*GoogleVision)(nil)

// GoogleVision adaptador del puerto TextOCR sobre Google Cloud Vision.
// Solo procesa imágenes: los PDF van por la capa de texto embebida, sin OCR.
type GoogleVision struct {
	client *vision.ImageAnnotatorClient
}

// NewGoogleVision construye el adaptador con las credenciales de la configuración.
// Sin credenciales explícitas intenta las default del entorno.
func NewGoogleVision(ctx context.Context, cfg config.OCRConfig) (*GoogleVision, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("crear cliente vision: %w", err)
	}
	return &GoogleVision{client: client}, nil
}

// ExtractText corre detección de texto de documento sobre la imagen y devuelve
// el texto completo en orden de lectura.
func (g *GoogleVision) ExtractText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("imagen vacía")
	}
	if len(image) > maxImageBytes {
		return "", fmt.Errorf("imagen supera el límite de %d bytes", maxImageBytes)
	}

	resp, err := g.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: image},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision API: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", fmt.Errorf("vision API sin respuesta")
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return "", fmt.Errorf("vision API: %s", r.Error.Message)
	}
	if r.FullTextAnnotation == nil {
		return "", nil
	}
	return r.FullTextAnnotation.Text, nil
}

// Close libera el cliente gRPC.
func (g *GoogleVision) Close() error {
	return g.client.Close()
}
