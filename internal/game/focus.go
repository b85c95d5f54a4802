package game

// focusPoints is the measured slingshot focus of each level on a fully
// zoomed-out 840x480 frame.
var focusPoints = [MaxLevel][2]int{
	{194, 326}, {208, 312}, {170, 336}, {194, 330}, {188, 335},
	{184, 333}, {171, 335}, {184, 333}, {174, 319}, {175, 324},
	{172, 333}, {164, 338}, {165, 336}, {171, 290}, {154, 338},
	{156, 320}, {175, 333}, {171, 330}, {162, 337}, {177, 328},
	{177, 303},
}

// Focus returns the slingshot focus point of a level.
func Focus(level int) (x, y int, err error) {
	if err := ValidateLevel(level); err != nil {
		return 0, 0, err
	}
	p := focusPoints[level-MinLevel]
	return p[0], p[1], nil
}
