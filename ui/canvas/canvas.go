// Package canvas provides an image canvas with scroll, zoom and click picking.
package canvas

import (
	"image"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const (
	minZoom  = 0.1
	maxZoom  = 16.0
	zoomStep = 1.25
)

// ImageCanvas displays one image with wheel zoom inside a scroll container.
type ImageCanvas struct {
	widget.BaseWidget

	img    image.Image
	raster *fynecanvas.Raster
	zoom   float64

	scroll  *zoomScroll
	content *clickableContent
	imgSize fyne.Size

	fitToWindow    bool
	lastScrollSize fyne.Size

	onZoomChange func(zoom float64)
	onLeftClick  func(x, y int)
}

// zoomScroll is a widget that wraps a scroll container but intercepts wheel for zoom.
type zoomScroll struct {
	widget.BaseWidget
	scroll *container.Scroll
	canvas *ImageCanvas
}

func newZoomScroll(content fyne.CanvasObject, canvas *ImageCanvas) *zoomScroll {
	scroll := container.NewScroll(content)
	scroll.Direction = container.ScrollBoth
	zs := &zoomScroll{scroll: scroll, canvas: canvas}
	zs.ExtendBaseWidget(zs)
	return zs
}

func (zs *zoomScroll) Scrolled(ev *fyne.ScrollEvent) {
	if ev.Scrolled.DY > 0 {
		zs.canvas.ZoomIn()
	} else if ev.Scrolled.DY < 0 {
		zs.canvas.ZoomOut()
	}
}

func (zs *zoomScroll) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(zs.scroll)
}

func (zs *zoomScroll) Resize(size fyne.Size) {
	zs.scroll.Resize(size)
	zs.BaseWidget.Resize(size)
	zs.canvas.CheckResize(size)
}

// clickableContent wraps the raster to receive taps.
type clickableContent struct {
	widget.BaseWidget
	canvas *ImageCanvas
	raster *fynecanvas.Raster
}

func newClickableContent(ic *ImageCanvas, raster *fynecanvas.Raster) *clickableContent {
	cc := &clickableContent{canvas: ic, raster: raster}
	cc.ExtendBaseWidget(cc)
	return cc
}

func (cc *clickableContent) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(cc.raster)
}

func (cc *clickableContent) MinSize() fyne.Size {
	return cc.raster.MinSize()
}

// Tapped reports the image pixel under a left click.
func (cc *clickableContent) Tapped(ev *fyne.PointEvent) {
	ic := cc.canvas
	if ic.onLeftClick == nil || ic.img == nil {
		return
	}
	size := cc.Size()
	if ev.Position.X < 0 || ev.Position.Y < 0 ||
		ev.Position.X > size.Width || ev.Position.Y > size.Height {
		return
	}
	x, y, ok := ImagePoint(ic.img.Bounds(), ic.zoom, float64(ev.Position.X), float64(ev.Position.Y))
	if ok {
		ic.onLeftClick(x, y)
	}
}

// NewImageCanvas creates a new image canvas.
func NewImageCanvas() *ImageCanvas {
	ic := &ImageCanvas{
		zoom:    1.0,
		imgSize: fyne.NewSize(400, 300),
	}

	ic.raster = fynecanvas.NewRaster(ic.draw)
	ic.raster.ScaleMode = fynecanvas.ImageScalePixels
	ic.raster.SetMinSize(ic.imgSize)

	ic.content = newClickableContent(ic, ic.raster)
	ic.scroll = newZoomScroll(ic.content, ic)

	ic.ExtendBaseWidget(ic)
	return ic
}

// CreateRenderer implements fyne.Widget.
func (ic *ImageCanvas) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(ic.scroll)
}

// SetImage replaces the displayed image; nil clears the canvas.
func (ic *ImageCanvas) SetImage(img image.Image) {
	ic.img = img
	if ic.fitToWindow {
		ic.FitToWindow()
		return
	}
	ic.updateContentSize()
}

// Image returns the displayed image.
func (ic *ImageCanvas) Image() image.Image {
	return ic.img
}

// SetZoom sets the zoom level.
func (ic *ImageCanvas) SetZoom(zoom float64) {
	ic.zoom = ClampZoom(zoom)
	ic.updateContentSize()
	if ic.onZoomChange != nil {
		ic.onZoomChange(ic.zoom)
	}
}

// Zoom returns the current zoom level.
func (ic *ImageCanvas) Zoom() float64 {
	return ic.zoom
}

// ZoomIn increases the zoom level.
func (ic *ImageCanvas) ZoomIn() {
	ic.fitToWindow = false
	ic.SetZoom(ic.zoom * zoomStep)
}

// ZoomOut decreases the zoom level.
func (ic *ImageCanvas) ZoomOut() {
	ic.fitToWindow = false
	ic.SetZoom(ic.zoom / zoomStep)
}

// FitToWindow adjusts zoom to fit the image in the visible area.
func (ic *ImageCanvas) FitToWindow() {
	if ic.img == nil {
		ic.updateContentSize()
		return
	}
	view := ic.scroll.Size()
	if zoom, ok := FitZoom(ic.img.Bounds(), float64(view.Width), float64(view.Height)); ok {
		ic.SetZoom(zoom)
	}
}

// SetFitToWindow enables or disables auto-fit on resize.
func (ic *ImageCanvas) SetFitToWindow(fit bool) {
	ic.fitToWindow = fit
	if fit {
		ic.FitToWindow()
	}
}

// FitsWindow returns the current fit-to-window state.
func (ic *ImageCanvas) FitsWindow() bool {
	return ic.fitToWindow
}

// CheckResize re-fits the image when the viewport size changed.
func (ic *ImageCanvas) CheckResize(size fyne.Size) {
	if !ic.fitToWindow {
		return
	}
	if size.Width > 0 && size.Height > 0 && size != ic.lastScrollSize {
		ic.lastScrollSize = size
		ic.FitToWindow()
	}
}

// OnZoomChange sets a callback for zoom changes.
func (ic *ImageCanvas) OnZoomChange(callback func(zoom float64)) {
	ic.onZoomChange = callback
}

// OnLeftClick sets a callback for left clicks, in image pixel coordinates.
func (ic *ImageCanvas) OnLeftClick(callback func(x, y int)) {
	ic.onLeftClick = callback
}

// Refresh refreshes the canvas display.
func (ic *ImageCanvas) Refresh() {
	ic.raster.Refresh()
}

// updateContentSize updates the content size based on image and zoom.
func (ic *ImageCanvas) updateContentSize() {
	if ic.img == nil {
		ic.imgSize = fyne.NewSize(400, 300)
	} else {
		b := ic.img.Bounds()
		ic.imgSize = fyne.NewSize(float32(float64(b.Dx())*ic.zoom), float32(float64(b.Dy())*ic.zoom))
	}

	ic.raster.SetMinSize(ic.imgSize)
	ic.raster.Resize(ic.imgSize)
	ic.content.Resize(ic.imgSize)
	ic.content.Refresh()
	ic.raster.Refresh()
	ic.scroll.Refresh()
}

// draw is the raster drawing function.
func (ic *ImageCanvas) draw(w, h int) image.Image {
	return Render(ic.img, w, h)
}

// Render scales src to w x h with nearest-neighbour sampling on a black
// background. A nil src renders black.
func Render(src image.Image, w, h int) *image.RGBA {
	output := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(output.Pix); i += 4 {
		output.Pix[i] = 255
	}
	if src == nil || w <= 0 || h <= 0 {
		return output
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return output
	}

	sx := float64(b.Dx()) / float64(w)
	sy := float64(b.Dy()) / float64(h)
	for y := 0; y < h; y++ {
		srcY := b.Min.Y + int(float64(y)*sy)
		for x := 0; x < w; x++ {
			srcX := b.Min.X + int(float64(x)*sx)
			r, g, bl, a := src.At(srcX, srcY).RGBA()
			i := output.PixOffset(x, y)
			output.Pix[i+0] = uint8(r >> 8)
			output.Pix[i+1] = uint8(g >> 8)
			output.Pix[i+2] = uint8(bl >> 8)
			output.Pix[i+3] = uint8(a >> 8)
		}
	}
	return output
}

// ClampZoom limits zoom to the supported range.
func ClampZoom(zoom float64) float64 {
	if zoom < minZoom {
		return minZoom
	}
	if zoom > maxZoom {
		return maxZoom
	}
	return zoom
}

// FitZoom returns the zoom that fits bounds into a viewport with a small margin.
func FitZoom(bounds image.Rectangle, viewW, viewH float64) (float64, bool) {
	if bounds.Dx() == 0 || bounds.Dy() == 0 || viewW <= 0 || viewH <= 0 {
		return 0, false
	}
	zoom := min(viewW/float64(bounds.Dx()), viewH/float64(bounds.Dy()))
	return ClampZoom(zoom * 0.95), true
}

// ImagePoint maps a position on the zoomed content to an image pixel.
func ImagePoint(bounds image.Rectangle, zoom, px, py float64) (int, int, bool) {
	if zoom <= 0 {
		return 0, 0, false
	}
	x := bounds.Min.X + int(px/zoom)
	y := bounds.Min.Y + int(py/zoom)
	if !(image.Point{X: x, Y: y}).In(bounds) {
		return 0, 0, false
	}
	return x, y, true
}
