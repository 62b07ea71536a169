package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNGRoundTrip(t *testing.T) {
	src, err := NewBuffer(3, 2, ModeRGBA)
	require.NoError(t, err)
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}

	data, err := src.EncodePNG()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, src.Width, decoded.Width)
	assert.Equal(t, src.Height, decoded.Height)
	assert.Equal(t, ModeRGBA, decoded.Mode)
	assert.Equal(t, src.Pix, decoded.Pix, "PNG is lossless, pixels survive the round trip")
}

func TestPNGRoundTripGray(t *testing.T) {
	src, err := NewBuffer(4, 4, ModeGray)
	require.NoError(t, err)
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 16)
	}

	data, err := src.EncodePNG()
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	gray, err := decoded.Convert(ModeGray)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, gray.Pix)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err, "empty data is not an image")

	_, err = Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}
