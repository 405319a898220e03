// Package imageconv decodes the image formats the gallery accepts and
// re-encodes them as PNG.
//
// Supported inputs are PNG, JPEG, GIF and WEBP; WEBP goes through libwebp via
// github.com/kolesa-team/go-webp. Outputs are always PNG:
//
//   - SquarePNG: center-cropped square, as the variations endpoint requires
//   - Thumbnail: aspect-preserving preview for the gallery grid
//   - ToPNG: plain re-encode
//
// Resizing is nearest-neighbour.
package imageconv
