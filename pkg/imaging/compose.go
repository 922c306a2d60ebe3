// Package imaging 提供图片解码、等比缩放补边与拼接合成的能力，
// 用于把多张产品图合成为单张可传输的模型输入图。
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // 注册 PNG 解码器
	"math"

	"golang.org/x/image/draw"
)

// jpegQuality 是合成图的编码质量。
const jpegQuality = 95

// Decode 将原始字节解码为位图。
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("图片内容为空")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// PadToSquare 在保持宽高比的前提下把图片缩放进 size×size 的画布，
// 空余部分用黑色补边（与 PIL ImageOps.pad 行为一致）。
func PadToSquare(img image.Image, size int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return dst
	}
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	sw := int(math.Round(float64(w) * scale))
	sh := int(math.Round(float64(h) * scale))
	x0 := (size - sw) / 2
	y0 := (size - sh) / 2

	target := image.Rect(x0, y0, x0+sw, y0+sh)
	draw.CatmullRom.Scale(dst, target, img, bounds, draw.Over, nil)
	return dst
}

// Placeholder 返回一张 size×size 的纯黑占位图，
// 用于填充缺失的图片槽位，保证槽位数量固定。
func Placeholder(size int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return dst
}

// TileHorizontal 把每张图补边为 size×size 后横向拼接为一张 (n*size)×size 的合成图。
// 颜色变体等图片组采用正方形补边再并排，便于模型按位置对应。
func TileHorizontal(imgs []image.Image, size int) image.Image {
	combined := image.NewRGBA(image.Rect(0, 0, size*len(imgs), size))
	for i, img := range imgs {
		padded := PadToSquare(img, size)
		target := image.Rect(i*size, 0, (i+1)*size, size)
		draw.Draw(combined, target, padded, image.Point{}, draw.Src)
	}
	return combined
}

// StackVertical 把每张图按统一宽度等比缩放后纵向堆叠。
// 文字图片保持整行宽高比对 OCR 更友好，因此不做正方形裁切。
func StackVertical(imgs []image.Image, width int) image.Image {
	heights := make([]int, len(imgs))
	total := 0
	for i, img := range imgs {
		bounds := img.Bounds()
		if bounds.Dx() == 0 {
			heights[i] = 0
			continue
		}
		heights[i] = int(math.Round(float64(bounds.Dy()) * float64(width) / float64(bounds.Dx())))
		total += heights[i]
	}

	combined := image.NewRGBA(image.Rect(0, 0, width, total))
	y := 0
	for i, img := range imgs {
		if heights[i] == 0 {
			continue
		}
		target := image.Rect(0, y, width, y+heights[i])
		draw.CatmullRom.Scale(combined, target, img, img.Bounds(), draw.Src, nil)
		y += heights[i]
	}
	return combined
}

// EncodeBase64JPEG 把位图编码为 JPEG 并转为 base64 字符串。
func EncodeBase64JPEG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
