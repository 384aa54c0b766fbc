package scanner

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
)

// QRDecoder decodes QR codes with gozxing.
type QRDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewQRDecoder returns a decoder that tries harder on blurry frames.
func NewQRDecoder() *QRDecoder {
	return &QRDecoder{hints: map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}}
}

// Decode implements Decoder. A new reader is used per call since readers are not
// safe for concurrent use.
func (d *QRDecoder) Decode(frame image.Image) (string, bool) {
	if frame == nil {
		return "", false
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(frame)
	if err != nil {
		return "", false
	}
	result, err := zxqrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil || result == nil {
		return "", false
	}
	text := result.GetText()
	if text == "" {
		return "", false
	}
	return text, true
}
