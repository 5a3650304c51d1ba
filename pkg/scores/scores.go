// Package scores computes detection quality scores from confusion counts.
package scores

// Compute returns precision, recall and F-score for the given true positive,
// false positive and false negative counts.
//
// When tp is zero all three scores are zero, which also covers the cases where
// precision or recall would divide by zero.
func Compute(tp, fp, fn int) (precision, recall, fscore float64) {
	if tp == 0 {
		return 0, 0, 0
	}

	precision = float64(tp) / float64(tp+fp)
	recall = float64(tp) / float64(tp+fn)
	fscore = 2 * precision * recall / (precision + recall)
	return precision, recall, fscore
}
