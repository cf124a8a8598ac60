package value

// TryImplicitIntersection reduces an array to the single element that lines
// up with the formula cell at. non-arrays are returned unchanged. a single
// row picks the element in at's column, a single column picks the element in
// at's row; both need an anchor. ok is false when no element lines up.
func TryImplicitIntersection(v Value, at CellAddress) (Value, bool) {
	if v.kind != KindArray {
		return v, true
	}
	a := v.arr
	if a.IsSingle() {
		if !a.Present(0, 0) {
			return Error(ErrorValue), false
		}
		return a.At(0, 0), true
	}
	anchor, ok := a.Anchor()
	if !ok {
		return Error(ErrorValue), false
	}

	row, col := 0, 0
	switch {
	case a.rows == 1:
		col = at.Column - anchor.Column
		if col < 0 || col >= a.cols {
			return Error(ErrorValue), false
		}
	case a.cols == 1:
		row = at.Row - anchor.Row
		if row < 0 || row >= a.rows {
			return Error(ErrorValue), false
		}
	default:
		return Error(ErrorValue), false
	}
	if !a.Present(row, col) {
		return Error(ErrorValue), false
	}
	return a.At(row, col), true
}

// ImplicitIntersection is TryImplicitIntersection for places where a scalar
// is required; failure yields ErrorValue.
func ImplicitIntersection(v Value, at CellAddress) Value {
	out, _ := TryImplicitIntersection(v, at)
	return out
}
